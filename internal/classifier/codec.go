package classifier

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeRequest builds {"rows": [[...]], "proba": bool}.
func EncodeRequest(rows [][]float64, proba bool) (*structpb.Struct, error) {
	list := make([]interface{}, len(rows))
	for i, row := range rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		list[i] = values
	}
	req, err := structpb.NewStruct(map[string]interface{}{
		"rows":  list,
		"proba": proba,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode predict request: %w", err)
	}
	return req, nil
}

// DecodeSchema reads {"columns": [...], "encoders": {"col": [...]}}.
func DecodeSchema(s *structpb.Struct) ([]string, map[string][]string, error) {
	columns, err := stringList(s.GetFields()["columns"])
	if err != nil {
		return nil, nil, fmt.Errorf("columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, nil, fmt.Errorf("model describes no columns")
	}

	encoders := make(map[string][]string)
	for name, v := range s.GetFields()["encoders"].GetStructValue().GetFields() {
		classes, err := stringList(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encoder %s: %w", name, err)
		}
		encoders[name] = classes
	}
	return columns, encoders, nil
}

// DecodeLabels reads {"labels": [...]}.
func DecodeLabels(s *structpb.Struct) ([]int, error) {
	v, ok := s.GetFields()["labels"]
	if !ok {
		return nil, fmt.Errorf("response has no labels")
	}
	values := v.GetListValue().GetValues()
	labels := make([]int, len(values))
	for i, l := range values {
		n, ok := l.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("label %d is not a number", i)
		}
		labels[i] = int(n.NumberValue)
	}
	return labels, nil
}

// DecodeProbabilities reads {"probabilities": [[...]]}.
func DecodeProbabilities(s *structpb.Struct) ([][]float64, error) {
	v, ok := s.GetFields()["probabilities"]
	if !ok {
		return nil, fmt.Errorf("response has no probabilities")
	}
	rows := v.GetListValue().GetValues()
	out := make([][]float64, len(rows))
	for i, row := range rows {
		values := row.GetListValue().GetValues()
		out[i] = make([]float64, len(values))
		for j, p := range values {
			out[i][j] = p.GetNumberValue()
		}
	}
	return out, nil
}

func stringList(v *structpb.Value) ([]string, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("expected a list")
	}
	out := make([]string, len(list.GetValues()))
	for i, item := range list.GetValues() {
		s, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("item %d is not a string", i)
		}
		out[i] = s.StringValue
	}
	return out, nil
}
