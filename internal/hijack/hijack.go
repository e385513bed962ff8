package hijack

import (
	"fmt"
	"io"
	"net/http"

	"github.com/ryanmoran/contattach/internal/stream"
)

// Hijack returns the live connection beneath resp. Responses produced by
// Client.Stream qualify, as do 101 upgrades made with net/http, whose body
// is the upgraded connection. Anything else fails with ErrNotHijackable.
func Hijack(resp *http.Response) (stream.Transport, error) {
	if resp == nil || resp.Body == nil {
		return nil, ErrNotHijackable
	}

	if conn, ok := resp.Body.(*hijackedConn); ok {
		return conn, nil
	}

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, fmt.Errorf("%w: status %d", ErrNotHijackable, resp.StatusCode)
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, fmt.Errorf("%w: upgraded body is not writable", ErrNotHijackable)
	}
	return rwc, nil
}

// Classify reads the wire format from the Content-Type header.
func Classify(resp *http.Response) (stream.ContentType, error) {
	return stream.ParseContentType(resp.Header.Get("Content-Type"))
}

// ToStreamingSocket classifies resp, hijacks its connection and wraps it.
// On failure the response body is closed.
func ToStreamingSocket(resp *http.Response) (stream.Socket, error) {
	if resp == nil {
		return nil, ErrNotHijackable
	}

	ct, err := Classify(resp)
	if err != nil {
		closeBody(resp)
		return nil, err
	}

	transport, err := Hijack(resp)
	if err != nil {
		closeBody(resp)
		return nil, err
	}

	return stream.NewSocket(transport, ct)
}

func closeBody(resp *http.Response) {
	if resp.Body != nil {
		resp.Body.Close()
	}
}
