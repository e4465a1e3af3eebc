package dashboards

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"

	"github.com/atriumhq/atrium/internal/errors"
)

// Layout grid bounds.
const (
	minColumns = 1
	maxColumns = 24
)

// ValidateLayout checks a layout document before it is published. A layout is
// an object with a column count and a widget list; each widget names a type
// and may carry a data binding expressed as a JSONPath.
func ValidateLayout(layout json.RawMessage) error {
	if len(layout) == 0 {
		return errors.InvalidInput("layout is required")
	}
	if !gjson.ValidBytes(layout) {
		return errors.InvalidInput("layout is not valid JSON")
	}

	doc := gjson.ParseBytes(layout)
	if !doc.IsObject() {
		return errors.InvalidInput("layout must be a JSON object")
	}

	columns := doc.Get("columns")
	if !columns.Exists() || columns.Type != gjson.Number {
		return errors.InvalidInput("layout.columns must be a number")
	}
	if n := columns.Int(); n < minColumns || n > maxColumns {
		return errors.InvalidInput(fmt.Sprintf("layout.columns must be between %d and %d", minColumns, maxColumns))
	}

	widgets := doc.Get("widgets")
	if !widgets.Exists() || !widgets.IsArray() {
		return errors.InvalidInput("layout.widgets must be an array")
	}

	var widgetErr error
	widgets.ForEach(func(i, widget gjson.Result) bool {
		if !widget.IsObject() {
			widgetErr = errors.InvalidInput(fmt.Sprintf("layout.widgets[%d] must be an object", i.Int()))
			return false
		}
		if widget.Get("type").Type != gjson.String || widget.Get("type").String() == "" {
			widgetErr = errors.InvalidInput(fmt.Sprintf("layout.widgets[%d].type is required", i.Int()))
			return false
		}
		if binding := widget.Get("binding"); binding.Exists() {
			if binding.Type != gjson.String {
				widgetErr = errors.InvalidInput(fmt.Sprintf("layout.widgets[%d].binding must be a string", i.Int()))
				return false
			}
			if _, err := jsonpath.New(binding.String()); err != nil {
				widgetErr = errors.InvalidInput(fmt.Sprintf("layout.widgets[%d].binding is not a valid JSONPath", i.Int())).
					WithDetails("binding", binding.String())
				return false
			}
		}
		return true
	})
	return widgetErr
}
