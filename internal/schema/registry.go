// Package schema is the protocol-buffer schema registry of the game-world
// service. Message types are built at start-up from a descriptor blueprint
// and decoded dynamically, so new candidate type names can be added when
// the game revises its protocol.
package schema

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// previewBytes is how much of a failed payload is logged as hex.
const previewBytes = 32

// Registry resolves dotted type names to dynamic message types.
type Registry struct {
	files  *protoregistry.Files
	types  *protoregistry.Types
	logger zerolog.Logger

	decoded  atomic.Uint64
	failures atomic.Uint64
}

// NewRegistry builds the game-world schema.
func NewRegistry() (*Registry, error) {
	fd, err := protodesc.NewFile(fileDescriptor(), new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("failed to build schema descriptor: %w", err)
	}

	files := new(protoregistry.Files)
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("failed to register schema file: %w", err)
	}

	types := new(protoregistry.Types)
	enums := fd.Enums()
	for i := 0; i < enums.Len(); i++ {
		if err := types.RegisterEnum(dynamicpb.NewEnumType(enums.Get(i))); err != nil {
			return nil, fmt.Errorf("failed to register enum %s: %w", enums.Get(i).FullName(), err)
		}
	}
	if err := registerMessages(types, fd.Messages()); err != nil {
		return nil, err
	}

	return &Registry{
		files:  files,
		types:  types,
		logger: log.With().Str("component", "schema").Logger(),
	}, nil
}

func registerMessages(types *protoregistry.Types, msgs protoreflect.MessageDescriptors) error {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if err := types.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
			return fmt.Errorf("failed to register message %s: %w", md.FullName(), err)
		}
		if err := registerMessages(types, md.Messages()); err != nil {
			return err
		}
	}
	return nil
}

// Resolve looks up a message type by its full name.
func (r *Registry) Resolve(name string) (protoreflect.MessageType, bool) {
	mt, err := r.types.FindMessageByName(protoreflect.FullName(name))
	if err != nil {
		return nil, false
	}
	return mt, true
}

// Decode unmarshals payload with the first candidate name that resolves.
// It never fails loudly: an empty payload, an unknown name list or a
// malformed payload is logged and reported as ok == false.
func (r *Registry) Decode(payload []byte, names ...string) (View, bool) {
	if len(payload) == 0 {
		r.fail("empty payload", names, payload, nil)
		return View{}, false
	}

	for _, name := range names {
		mt, ok := r.Resolve(name)
		if !ok {
			continue
		}
		msg := mt.New()
		opts := proto.UnmarshalOptions{DiscardUnknown: true}
		if err := opts.Unmarshal(payload, msg.Interface()); err != nil {
			r.fail("payload decode failed", names, payload, err)
			return View{}, false
		}
		r.decoded.Add(1)
		return View{m: msg}, true
	}

	r.fail("no candidate schema resolved", names, payload, nil)
	return View{}, false
}

func (r *Registry) fail(msg string, names []string, payload []byte, err error) {
	r.failures.Add(1)
	preview := payload
	if len(preview) > previewBytes {
		preview = preview[:previewBytes]
	}
	ev := r.logger.Debug()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Str("names", strings.Join(names, ",")).
		Int("len", len(payload)).
		Str("hex", hex.EncodeToString(preview)).
		Msg(msg)
}

// Decoded returns the number of successfully decoded payloads.
func (r *Registry) Decoded() uint64 { return r.decoded.Load() }

// Failures returns the number of payloads that could not be decoded.
func (r *Registry) Failures() uint64 { return r.failures.Load() }

// FullName qualifies a bare message name with the schema package.
func FullName(name string) string {
	return Package + "." + name
}
