// Package serializer converts HTTP responses to and from their stored
// snapshot form. The snapshot is simply the HTTP/1.1 wire representation of
// the response (status line, headers, body).
package serializer

import (
	"bufio"
	"bytes"
	"net/http"
)

// BytesToResponse converts a stored snapshot back to a http.Response.
func BytesToResponse(b []byte) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
}

// ResponseToBytes converts a response to a byte slice.
// It returns the HTTP/1.1 representation of the response.
// The response body is consumed in the process and replaced with an
// equivalent reader, so the response stays usable by the caller.
func ResponseToBytes(res *http.Response) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	bts := buf.Bytes()
	// set response body back
	clonedRes, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(bts)), res.Request)
	if err != nil {
		return nil, err
	}
	res.Body = clonedRes.Body
	return bts, nil
}
