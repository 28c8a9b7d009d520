// Copyright (C) The netquery contributors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package natsio bridges query pipelines to NATS subjects: Source drives
// an operator.Operator from decoded messages on a subject, and Sink
// publishes the records an operator chain emits back onto one.
package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/lukemarshall2222/netquery/pkg/operator"
	"github.com/lukemarshall2222/netquery/pkg/record"
	"github.com/lukemarshall2222/netquery/pkg/value"
)

// Config configures a connection to a NATS server.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
}

func dial(cfg Config) (*nats.Conn, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("natsio: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				cclog.Warnf("natsio: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			cclog.Infof("natsio: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			cclog.Errorf("natsio: async error: %v", err)
		}),
	)

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsio: connect: %w", err)
	}
	cclog.Infof("natsio: connected to %s", cfg.Address)
	return nc, nil
}

// wireRecord is the JSON encoding used for records carried over NATS:
// field order is not meaningful on the wire, so it is a plain map plus
// an explicit arm tag per value so the decoder can reconstruct typed
// value.Values rather than guessing from JSON's own number/string split.
type wireRecord map[string]wireValue

type wireValue struct {
	Arm string  `json:"arm"`
	Num float64 `json:"num,omitempty"`
	Str string  `json:"str,omitempty"`
}

func encodeRecord(r record.Record) ([]byte, error) {
	w := make(wireRecord, r.Len())
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		switch v.Arm() {
		case value.ArmFloat:
			f, _ := v.AsFloat()
			w[k] = wireValue{Arm: "float", Num: f}
		case value.ArmInt:
			n, _ := v.AsInt()
			w[k] = wireValue{Arm: "int", Num: float64(n)}
		case value.ArmIPv4:
			w[k] = wireValue{Arm: "ipv4", Str: v.String()}
		case value.ArmMAC:
			w[k] = wireValue{Arm: "mac", Str: v.String()}
		default:
			w[k] = wireValue{Arm: "empty"}
		}
	}
	return json.Marshal(w)
}

func decodeRecord(data []byte) (record.Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return record.Record{}, fmt.Errorf("natsio: decode: %w", err)
	}
	r := record.New()
	for k, wv := range w {
		switch wv.Arm {
		case "float":
			r = r.Set(k, value.Float(wv.Num))
		case "int":
			r = r.Set(k, value.Int(int64(wv.Num)))
		case "ipv4":
			ip := net.ParseIP(wv.Str).To4()
			if ip == nil {
				return record.Record{}, fmt.Errorf("natsio: decode: bad ipv4 %q for field %q", wv.Str, k)
			}
			addr := uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
			r = r.Set(k, value.IPv4(addr))
		case "mac":
			hw, err := net.ParseMAC(wv.Str)
			if err != nil || len(hw) != 6 {
				return record.Record{}, fmt.Errorf("natsio: decode: bad mac %q for field %q", wv.Str, k)
			}
			var addr [6]byte
			copy(addr[:], hw)
			r = r.Set(k, value.MAC(addr))
		default:
			r = r.Set(k, value.Empty())
		}
	}
	return r, nil
}

// Source subscribes to a subject and drives op's Next for every decoded
// message; a message carrying the reserved "__reset__" field instead
// drives op's Reset, letting an upstream publisher signal epoch
// boundaries across the wire.
type Source struct {
	conn    *nats.Conn
	limiter *rate.Limiter
}

// NewSource dials cfg and returns a Source. ratePerSecond bounds how many
// messages per second are handed to op; zero disables limiting.
func NewSource(cfg Config, ratePerSecond float64) (*Source, error) {
	nc, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	var lim *rate.Limiter
	if ratePerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond))
	}
	return &Source{conn: nc, limiter: lim}, nil
}

// Run subscribes to subject and blocks, feeding op until ctx is
// cancelled or op's Next or Reset returns an error.
func (s *Source) Run(ctx context.Context, subject string, op operator.Operator) error {
	errCh := make(chan error, 1)

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
		}
		r, err := decodeRecord(msg.Data)
		if err != nil {
			cclog.Warnf("natsio: dropping malformed message on %q: %v", subject, err)
			return
		}
		if _, isReset := r.Get("__reset__"); isReset {
			if err := op.Reset(r.Drop("__reset__")); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
			return
		}
		if err := op.Next(r); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("natsio: subscribe to %q: %w", subject, err)
	}
	defer sub.Unsubscribe()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close closes the underlying NATS connection.
func (s *Source) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// Sink publishes every record it receives to a fixed subject as a
// Next message; Reset is published as a message carrying the reserved
// "__reset__" marker so a downstream Source can reconstruct epoch
// boundaries.
type Sink struct {
	conn    *nats.Conn
	subject string
}

// NewSink dials cfg and returns a Sink publishing to subject.
func NewSink(cfg Config, subject string) (*Sink, error) {
	nc, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Sink{conn: nc, subject: subject}, nil
}

func (s *Sink) Next(r record.Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject, data)
}

func (s *Sink) Reset(r record.Record) error {
	data, err := encodeRecord(r.Set("__reset__", value.Int(1)))
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject, data)
}

// Close flushes and closes the underlying NATS connection.
func (s *Sink) Close() {
	if s.conn != nil {
		s.conn.Flush()
		s.conn.Close()
	}
}
