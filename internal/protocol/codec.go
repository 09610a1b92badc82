package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"proxima/internal/registry"
)

// MaxFrameSize bounds one encoded envelope.
const MaxFrameSize = 1 << 20

const framePrefixLen = 4

type frame struct {
	Kind    Kind            `cbor:"1,keyasint"`
	Arg1    int64           `cbor:"2,keyasint,omitempty"`
	Key     uint64          `cbor:"3,keyasint,omitempty"`
	Route   string          `cbor:"4,keyasint,omitempty"`
	Payload cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: 65536}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
}

// Marshal encodes env into one CBOR frame body without the length prefix.
func Marshal(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if env.Kind.LocalOnly() {
		return nil, fmt.Errorf("%w: %s is never sent", ErrUnknownMessage, env.Kind)
	}
	f := frame{Kind: env.Kind, Arg1: env.Arg1, Key: uint64(env.Key), Route: env.RouteID()}
	switch body := env.Body.(type) {
	case DiscoverNeighborsFailed, ResponseNeighbors:
		payload, err := encMode.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", env.Kind, err)
		}
		f.Payload = payload
	case NeighborsChanged:
		if body.State != "" {
			payload, err := encMode.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode %s payload: %w", env.Kind, err)
			}
			f.Payload = payload
		}
	}
	return encMode.Marshal(f)
}

// Unmarshal decodes one frame body. The route, when present, is detached.
func Unmarshal(data []byte) (Envelope, error) {
	var f frame
	if err := decMode.Unmarshal(data, &f); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if !f.Kind.Valid() || f.Kind.LocalOnly() {
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownMessage, f.Kind)
	}
	body, err := decodeBody(f.Kind, f.Payload)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{Kind: f.Kind, Arg1: f.Arg1, Key: registry.Key(f.Key), Body: body}
	if f.Route != "" {
		env.Route = DetachedRoute(f.Route)
	}
	return env, nil
}

func decodeBody(kind Kind, payload cbor.RawMessage) (Message, error) {
	switch kind {
	case KindDiscoverNeighborsFailed:
		var body DiscoverNeighborsFailed
		if err := decodePayload(kind, payload, &body); err != nil {
			return nil, err
		}
		return body, nil
	case KindResponseNeighbors:
		var body ResponseNeighbors
		if err := decodePayload(kind, payload, &body); err != nil {
			return nil, err
		}
		return body, nil
	case KindNeighborsChanged:
		var body NeighborsChanged
		if len(payload) == 0 {
			return body, nil
		}
		if err := decodePayload(kind, payload, &body); err != nil {
			return nil, err
		}
		return body, nil
	default:
		return EmptyBody(kind)
	}
}

func decodePayload(kind Kind, payload cbor.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: %s without payload", ErrUnknownMessage, kind)
	}
	if err := decMode.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return nil
}

// Encoder writes length-prefixed frames. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes env as one frame.
func (e *Encoder) Encode(env Envelope) error {
	blob, err := Marshal(env)
	if err != nil {
		return err
	}
	if len(blob) > MaxFrameSize {
		return fmt.Errorf("encode %s: %d bytes: %w", env.Kind, len(blob), ErrFrameTooLarge)
	}
	buf := make([]byte, framePrefixLen+len(blob))
	binary.BigEndian.PutUint32(buf, uint32(len(blob)))
	copy(buf[framePrefixLen:], blob)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w: %w", ErrTransport, err)
	}
	return nil
}

// Decoder reads length-prefixed frames from a single reader goroutine.
type Decoder struct {
	r      io.Reader
	prefix [framePrefixLen]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next frame. It returns io.EOF unchanged when the stream
// ends cleanly between frames.
func (d *Decoder) Decode() (Envelope, error) {
	if _, err := io.ReadFull(d.r, d.prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Envelope{}, io.EOF
		}
		return Envelope{}, fmt.Errorf("read frame prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(d.prefix[:])
	if size > MaxFrameSize {
		return Envelope{}, fmt.Errorf("read frame: %d bytes: %w", size, ErrFrameTooLarge)
	}
	blob := make([]byte, size)
	if _, err := io.ReadFull(d.r, blob); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	return Unmarshal(blob)
}
