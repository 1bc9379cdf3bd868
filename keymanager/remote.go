// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/project-illium/ilxevm/crypto"
	"github.com/project-illium/ilxevm/types"
)

const defaultMaxRetries = 5

var _ KeyManager = (*RemoteKeyManager)(nil)

// RemoteKeyManager calls a key manager served by NewHandler. Transport
// failures are retried with exponential backoff; errors returned by the
// key manager itself are not.
type RemoteKeyManager struct {
	url        string
	client     *http.Client
	maxRetries uint64
}

// Option configures a RemoteKeyManager.
type Option func(r *RemoteKeyManager)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *RemoteKeyManager) {
		r.client = client
	}
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n uint64) Option {
	return func(r *RemoteKeyManager) {
		r.maxRetries = n
	}
}

func NewRemoteKeyManager(url string, opts ...Option) *RemoteKeyManager {
	r := &RemoteKeyManager{
		url:        url,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteKeyManager) GetOrCreateContractKey(ctx context.Context, id types.ContractID) (*ContractKey, error) {
	var reply ContractKeyReply
	if err := r.call(ctx, serviceName+".GetOrCreateContractKey", &ContractIDArgs{ContractID: id.Bytes()}, &reply); err != nil {
		return nil, err
	}
	if len(reply.PublicKey) != crypto.Curve25519PublicKeySize ||
		len(reply.SecretKey) != crypto.Curve25519PrivateKeySize ||
		len(reply.StateKey) != crypto.StateKeySize {
		return nil, errors.New("key manager returned malformed contract key")
	}
	ck := new(ContractKey)
	copy(ck.PublicKey[:], reply.PublicKey)
	copy(ck.SecretKey[:], reply.SecretKey)
	copy(ck.StateKey[:], reply.StateKey)
	return ck, nil
}

func (r *RemoteKeyManager) GetPublicKey(ctx context.Context, id types.ContractID) (*PublicKeyPayload, error) {
	var reply PublicKeyReply
	if err := r.call(ctx, serviceName+".GetPublicKey", &ContractIDArgs{ContractID: id.Bytes()}, &reply); err != nil {
		return nil, err
	}
	if len(reply.PublicKey) != crypto.Curve25519PublicKeySize {
		return nil, errors.New("key manager returned malformed public key")
	}
	p := &PublicKeyPayload{
		Timestamp: reply.Timestamp,
		Signature: reply.Signature,
	}
	copy(p.PublicKey[:], reply.PublicKey)
	return p, nil
}

func (r *RemoteKeyManager) call(ctx context.Context, method string, args, reply interface{}) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			log.Debugf("Key manager request %s failed: %s", method, err)
			return err
		}
		defer resp.Body.Close()

		err = json2.DecodeClientResponse(resp.Body, reply)
		var rpcErr *json2.Error
		switch {
		case errors.As(err, &rpcErr):
			if rpcErr.Message == ErrKeyNotFound.Error() {
				return backoff.Permanent(ErrKeyNotFound)
			}
			return backoff.Permanent(rpcErr)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("key manager returned status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("key manager returned status %d", resp.StatusCode))
		case err != nil:
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	return backoff.Retry(op, b)
}
