package cytomine

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	now := time.Date(2020, time.February, 1, 11, 20, 30, 0, time.FixedZone("CET", 3600))
	s := signer{publicKey: "public-key", privateKey: "private-key"}

	testCases := []struct {
		name          string
		method        string
		url           string
		contentType   string
		expectedToken string
	}{
		{
			name:          "GET with query",
			method:        http.MethodGet,
			url:           "http://localhost-core/api/project.json?max=10&offset=0",
			expectedToken: "EPd99Z2YXLEv5l2Yh3RZ2qqhoAE=",
		},
		{
			name:          "POST with content type",
			method:        http.MethodPost,
			url:           "http://localhost-core/api/project.json",
			contentType:   "application/json",
			expectedToken: "Oftlne66dgsjfpZ13O8zhriUYrs=",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.url, nil)
			require.NoError(t, err)
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}

			s.sign(req, now)

			assert.Equal(t, "Sat, 01 Feb 2020 10:20:30 +0000", req.Header.Get("Date"))
			assert.Equal(t, "CYTOMINE public-key:"+tc.expectedToken, req.Header.Get("Authorization"))
		})
	}
}
