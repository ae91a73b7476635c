package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"reflect"
)

//go:embed templates static
var ContentFS embed.FS

// GetHTMLTemplate parses the named page template together with the shared
// partials under templates/common.
func GetHTMLTemplate(name string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"reverse": reverseFunc,
	}
	templateFS, _ := fs.Sub(ContentFS, "templates")

	return template.New(name).Funcs(funcMap).ParseFS(templateFS, "common/*.tmpl.*", name+".tmpl.html")
}

// indirectInterface returns the concrete value in an interface value,
// or else the zero reflect.Value.
func indirectInterface(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Interface {
		return v
	}
	if v.IsNil() {
		return reflect.Value{}
	}
	return v.Elem()
}

// reverseFunc lets templates walk a slice back to front; history pages use
// it to show a newest-first page in chronological order.
func reverseFunc(item reflect.Value) (<-chan any, error) {
	ch := make(chan any)
	var err error
	go func() {
		v := indirectInterface(item)
		switch v.Kind() {
		case reflect.Array, reflect.Slice, reflect.String:
			for i := v.Len(); i != 0; i-- {
				ch <- v.Index(i - 1).Interface()
			}
		default:
			err = fmt.Errorf("unsupported type, found %q", v.Kind().String())
		}

		close(ch)
	}()
	return ch, err
}
