package mail

import "encoding/base64"

func base64PNG(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
