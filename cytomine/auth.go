package cytomine

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"encoding/base64"
	"net/http"
	"time"
)

const (
	authScheme = "CYTOMINE"
	dateLayout = "Mon, 02 Jan 2006 15:04:05 +0000"
)

// signer computes the Cytomine HMAC signature of a request.
type signer struct {
	publicKey  string
	privateKey string
}

// sign sets the Date and Authorization headers of req. The signed message is
// "METHOD\n\nCONTENT-TYPE\nDATE\nREQUEST-URI".
func (s signer) sign(req *http.Request, now time.Time) {
	date := now.UTC().Format(dateLayout)
	req.Header.Set("Date", date)

	token := req.Method + "\n\n" + req.Header.Get("Content-Type") + "\n" + date + "\n" + req.URL.RequestURI()
	req.Header.Set("Authorization", authScheme+" "+s.publicKey+":"+signature(s.privateKey, token))
}

func signature(privateKey string, token string) string {
	mac := hmac.New(sha1.New, []byte(privateKey))
	mac.Write([]byte(token))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
