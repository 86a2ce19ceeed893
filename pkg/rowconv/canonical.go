package rowconv

import (
	"bytes"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	wrapperPrefix = []byte(`{"v":`)
	wrapperSuffix = []byte(`}`)
)

// CanonicalText serializes a document or any BSON value as relaxed
// Extended JSON. Document key order is preserved.
func CanonicalText(v interface{}) (string, error) {
	switch v.(type) {
	case bson.D, bson.Raw:
		out, err := bson.MarshalExtJSON(v, false, false)
		if err != nil {
			return "", fmt.Errorf("failed to serialize document: %w", err)
		}
		return string(out), nil
	}

	// Extended JSON only has a top-level form for documents.
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}
	out = bytes.TrimPrefix(out, wrapperPrefix)
	out = bytes.TrimSuffix(out, wrapperSuffix)
	return string(out), nil
}
