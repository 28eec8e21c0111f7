package gateway

import (
	"errors"
	"fmt"

	"github.com/vincent-petithory/dataurl"
)

var errNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL splits "data:<mime>;base64,<payload>" into its MIME type and
// decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", errNotDataURL, err)
	}
	if du.Encoding != dataurl.EncodingBase64 {
		return "", nil, errNotDataURL
	}
	return du.MediaType.ContentType(), du.Data, nil
}

// DataURL builds a base64 data URL
func DataURL(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}
