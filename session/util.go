package session

import (
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/rcowham/gitsvnbridge/propsynth"
)

func hexDigest(sum [16]byte) string {
	return hex.EncodeToString(sum[:])
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

// decodeRevProps unmarshals the JSON bag revindex.Index stores unversioned
// revision properties as back into the regular PropertyMap shape the wire
// protocol's rev-prop commands deal in.
func decodeRevProps(raw string) (propsynth.PropertyMap, error) {
	if raw == "" {
		return propsynth.PropertyMap{}, nil
	}
	var m propsynth.PropertyMap
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeRevProps(props propsynth.PropertyMap) (string, error) {
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
