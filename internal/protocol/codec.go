package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eleven-am/dictation/internal/shared"
)

func EncodeRequest(r Request) ([]byte, error) {
	if r.RequestID == "" || r.AudioFile == "" {
		return nil, fmt.Errorf("%w: request_id and audio_file are required", shared.ErrProtocol)
	}
	return json.Marshal(r)
}

func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: decode request: %v", shared.ErrProtocol, err)
	}
	if r.RequestID == "" || r.AudioFile == "" {
		return Request{}, fmt.Errorf("%w: request missing request_id or audio_file", shared.ErrProtocol)
	}
	return r, nil
}

func EncodeResponse(r Response) ([]byte, error) {
	if r.RequestID == "" {
		return nil, fmt.Errorf("%w: response without request_id", shared.ErrProtocol)
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrProtocol, r.Status)
	}
	return json.Marshal(r)
}

func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("%w: decode response: %v", shared.ErrProtocol, err)
	}
	if r.RequestID == "" {
		return Response{}, fmt.Errorf("%w: response missing request_id", shared.ErrProtocol)
	}
	if !r.Status.Valid() {
		return Response{}, fmt.Errorf("%w: unknown status %q", shared.ErrProtocol, r.Status)
	}
	return r, nil
}

// FileName is the mailbox file name for id.
func FileName(id string) string {
	return id + FileExt
}

// IDFromFileName reverses FileName. Dot files (in-flight temp writes) and
// foreign extensions are rejected.
func IDFromFileName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, FileExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, FileExt)
	if id == "" {
		return "", false
	}
	return id, true
}
