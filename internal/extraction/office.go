package extraction

import (
	"bytes"
	"context"

	"code.sajari.com/docconv/v2"
)

// extractOffice converts word-processor formats with docconv.
// .doc and .rtf depend on the antiword and unrtf binaries being installed.
func extractOffice(_ context.Context, mimeType string, data []byte) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}
