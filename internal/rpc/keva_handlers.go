package rpc

import (
	"fmt"
	"strings"

	"github.com/kevanet/kevachain/internal/keva"
)

// ── Keva endpoints ───────────────────────────────────────────────────

func (s *Server) requireKevaManager() *Error {
	if s.kevaMgr == nil {
		return &Error{Code: CodeInternalError, Message: "keva overlay not available"}
	}
	return nil
}

func decodeKevaNamespace(s string) (keva.NamespaceId, *Error) {
	if s == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "namespace is required"}
	}
	ns, err := keva.DecodeNamespace(s)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid namespace: %v", err)}
	}
	return ns, nil
}

// handleKevaGet resolves a single (namespace, key), preferring an
// unconfirmed mempool write over the confirmed store (§4.4 query
// precedence).
func (s *Server) handleKevaGet(req *Request) (interface{}, *Error) {
	if err := s.requireKevaManager(); err != nil {
		return nil, err
	}

	var params KevaGetParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	ns, nsErr := decodeKevaNamespace(params.Namespace)
	if nsErr != nil {
		return nil, nsErr
	}
	if params.Key == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "key is required"}
	}

	if v, ok := s.kevaMgr.Mempool().GetUnconfirmedKV(ns, keva.Key(params.Key)); ok {
		return &KevaGetResult{
			Namespace:   params.Namespace,
			Key:         params.Key,
			Value:       string(v),
			Unconfirmed: true,
		}, nil
	}

	e, found, err := s.kevaMgr.View().Get(ns, keva.Key(params.Key))
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("get key: %v", err)}
	}
	if !found {
		return nil, &Error{Code: CodeNotFound, Message: "key not found"}
	}
	return &KevaGetResult{
		Namespace: params.Namespace,
		Key:       params.Key,
		Value:     string(e.Value),
		Height:    e.Height,
	}, nil
}

// handleKevaFilter lists every confirmed key/value entry in a
// namespace, optionally restricted to a key prefix, skipping the
// reserved display-name entry.
func (s *Server) handleKevaFilter(req *Request) (interface{}, *Error) {
	if err := s.requireKevaManager(); err != nil {
		return nil, err
	}

	var params KevaFilterParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	ns, nsErr := decodeKevaNamespace(params.Namespace)
	if nsErr != nil {
		return nil, nsErr
	}

	it, err := s.kevaMgr.View().IterateEntries(ns)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("iterate namespace: %v", err)}
	}
	defer it.Close()

	entries := make([]KevaEntry, 0)
	for it.Valid() {
		key := string(it.Key())
		if key != keva.DisplayNameKey && (params.Prefix == "" || strings.HasPrefix(key, params.Prefix)) {
			e := it.Entry()
			entries = append(entries, KevaEntry{Key: key, Value: string(e.Value), Height: e.Height})
		}
		it.Next()
	}
	if err := it.Err(); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("iterate namespace: %v", err)}
	}

	return &KevaFilterResult{Namespace: params.Namespace, Entries: entries}, nil
}

// handleKevaGetNamespaceInfo returns a namespace's reserved display
// name entry.
func (s *Server) handleKevaGetNamespaceInfo(req *Request) (interface{}, *Error) {
	if err := s.requireKevaManager(); err != nil {
		return nil, err
	}

	var params KevaNamespaceInfoParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	ns, nsErr := decodeKevaNamespace(params.Namespace)
	if nsErr != nil {
		return nil, nsErr
	}

	e, found, err := s.kevaMgr.View().Get(ns, keva.Key(keva.DisplayNameKey))
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("get namespace info: %v", err)}
	}
	if !found {
		return nil, &Error{Code: CodeNotFound, Message: "namespace not found"}
	}
	return &KevaNamespaceInfoResult{
		Namespace:   params.Namespace,
		DisplayName: string(e.Value),
		Height:      e.Height,
	}, nil
}

// handleKevaGetUnconfirmed returns every mempool-pending namespace
// registration and key/value mutation, for wallet-style "what's
// pending" views.
func (s *Server) handleKevaGetUnconfirmed(_ *Request) (interface{}, *Error) {
	if err := s.requireKevaManager(); err != nil {
		return nil, err
	}

	mp := s.kevaMgr.Mempool()
	namespaces := mp.ListUnconfirmedNamespaces()
	kvs := mp.ListUnconfirmedKVs(nil)

	result := KevaUnconfirmedResult{
		Namespaces: make([]UnconfirmedNamespaceEntry, 0, len(namespaces)),
		KeyValues:  make([]UnconfirmedKVEntry, 0, len(kvs)),
	}
	for _, n := range namespaces {
		result.Namespaces = append(result.Namespaces, UnconfirmedNamespaceEntry{
			Namespace:   keva.EncodeNamespace(n.Namespace),
			DisplayName: string(n.DisplayName),
			TxHash:      n.TxHash.String(),
		})
	}
	for _, kv := range kvs {
		result.KeyValues = append(result.KeyValues, UnconfirmedKVEntry{
			Namespace: keva.EncodeNamespace(kv.Namespace),
			Key:       string(kv.Key),
			Value:     string(kv.Value),
			TxHash:    kv.TxHash.String(),
		})
	}
	return &result, nil
}
