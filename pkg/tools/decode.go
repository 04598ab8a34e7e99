package tools

import "github.com/mitchellh/mapstructure"

// decodeInput decodes a tool input map into a typed struct. Weakly typed
// decoding is used because inputs often arrive from JSON, where every number
// is a float64.
func decodeInput(input map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
