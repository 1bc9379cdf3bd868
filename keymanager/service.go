// Copyright (c) 2024 The illium developers
// Use of this source code is governed by an MIT
// license that can be found in the LICENSE file.

package keymanager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/project-illium/ilxevm/types"
)

const serviceName = "keymanager"

// ContractIDArgs are the arguments to every key manager method.
type ContractIDArgs struct {
	ContractID types.HexEncodable `json:"contractID"`
}

// ContractKeyReply is the JSON form of a ContractKey.
type ContractKeyReply struct {
	PublicKey types.HexEncodable `json:"publicKey"`
	SecretKey types.HexEncodable `json:"secretKey"`
	StateKey  types.HexEncodable `json:"stateKey"`
}

// PublicKeyReply is the JSON form of a PublicKeyPayload.
type PublicKeyReply struct {
	PublicKey types.HexEncodable `json:"publicKey"`
	Timestamp uint64             `json:"timestamp"`
	Signature types.HexEncodable `json:"signature"`
}

// Service exposes a KeyManager over JSON-RPC 2.0.
type Service struct {
	km KeyManager
}

// NewHandler returns an http.Handler serving the key manager methods
// under the "keymanager" service name.
func NewHandler(km KeyManager) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	if err := server.RegisterService(&Service{km: km}, serviceName); err != nil {
		return nil, err
	}
	return server, nil
}

func (s *Service) GetOrCreateContractKey(r *http.Request, args *ContractIDArgs, reply *ContractKeyReply) error {
	id, err := parseContractID(args)
	if err != nil {
		return err
	}
	ck, err := s.km.GetOrCreateContractKey(r.Context(), id)
	if err != nil {
		log.Errorf("GetOrCreateContractKey %s: %s", id, err)
		return err
	}
	reply.PublicKey = ck.PublicKey[:]
	reply.SecretKey = ck.SecretKey[:]
	reply.StateKey = ck.StateKey[:]
	return nil
}

func (s *Service) GetPublicKey(r *http.Request, args *ContractIDArgs, reply *PublicKeyReply) error {
	id, err := parseContractID(args)
	if err != nil {
		return err
	}
	p, err := s.km.GetPublicKey(r.Context(), id)
	if errors.Is(err, ErrKeyNotFound) {
		return &json2.Error{Code: json2.E_SERVER, Message: ErrKeyNotFound.Error()}
	} else if err != nil {
		return err
	}
	reply.PublicKey = p.PublicKey[:]
	reply.Timestamp = p.Timestamp
	reply.Signature = p.Signature
	return nil
}

func parseContractID(args *ContractIDArgs) (types.ContractID, error) {
	if len(args.ContractID) != len(types.ContractID{}) {
		return types.ContractID{}, &json2.Error{
			Code:    json2.E_INVALID_REQ,
			Message: fmt.Sprintf("contract id must be %d bytes", len(types.ContractID{})),
		}
	}
	var id types.ContractID
	copy(id[:], args.ContractID)
	return id, nil
}
