package exchange

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	zeroAddress             = "0x0000000000000000000000000000000000000000"
	defaultSignatureChainID = "0x66eee"
	withdrawPrimaryType     = "HyperliquidTransaction:Withdraw"
)

var domainFields = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var agentFields = []apitypes.Type{
	{Name: "source", Type: "string"},
	{Name: "connectionId", Type: "bytes32"},
}

var withdrawFields = []apitypes.Type{
	{Name: "hyperliquidChain", Type: "string"},
	{Name: "destination", Type: "string"},
	{Name: "amount", Type: "string"},
	{Name: "time", Type: "uint64"},
}

// Signer produces EIP-712 signatures for trading (agent) and user-signed
// actions with one secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	addr    common.Address
	mainnet bool
}

func NewSigner(hexKey string, mainnet bool) (*Signer, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{key: key, addr: crypto.PubkeyToAddress(key.PublicKey), mainnet: mainnet}, nil
}

func (s *Signer) Address() common.Address {
	return s.addr
}

// SignOrderAction signs an order action as the phantom agent for its
// connection id.
func (s *Signer) SignOrderAction(action OrderAction, nonce uint64, vault *common.Address) (Signature, error) {
	payload, err := EncodeOrderAction(action)
	if err != nil {
		return Signature{}, err
	}
	digest, err := agentDigest(connectionID(payload, nonce, vault), s.mainnet)
	if err != nil {
		return Signature{}, err
	}
	return s.sign(digest)
}

// SignWithdraw signs a withdraw3 action, filling in chain fields left empty.
func (s *Signer) SignWithdraw(action *WithdrawAction) (Signature, error) {
	if action == nil {
		return Signature{}, errors.New("withdraw action is required")
	}
	if action.SignatureChainID == "" {
		action.SignatureChainID = defaultSignatureChainID
	}
	if action.HyperliquidChain == "" {
		action.HyperliquidChain = chainName(s.mainnet)
	}
	digest, err := userDigest(action.SignatureChainID, withdrawPrimaryType, withdrawFields, apitypes.TypedDataMessage{
		"hyperliquidChain": action.HyperliquidChain,
		"destination":      action.Destination,
		"amount":           action.Amount,
		"time":             strconv.FormatUint(action.Time, 10),
	})
	if err != nil {
		return Signature{}, err
	}
	return s.sign(digest)
}

func (s *Signer) sign(digest []byte) (Signature, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, err
	}
	if len(sig) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

// connectionID is keccak(msgpack(action) || nonce || vault flag [|| vault]).
func connectionID(payload []byte, nonce uint64, vault *common.Address) []byte {
	buf := make([]byte, 0, len(payload)+8+1+common.AddressLength)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint64(buf, nonce)
	if vault == nil {
		buf = append(buf, 0x00)
	} else {
		buf = append(buf, 0x01)
		buf = append(buf, vault.Bytes()...)
	}
	return crypto.Keccak256(buf)
}

func agentDigest(connID []byte, mainnet bool) ([]byte, error) {
	source := "a"
	if !mainnet {
		source = "b"
	}
	domain := apitypes.TypedDataDomain{
		Name:              "Exchange",
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(1337),
		VerifyingContract: zeroAddress,
	}
	return typedDigest(domain, "Agent", agentFields, apitypes.TypedDataMessage{
		"source":       source,
		"connectionId": hexutil.Encode(connID),
	})
}

func userDigest(signatureChainID, primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) ([]byte, error) {
	var chainID math.HexOrDecimal256
	if err := chainID.UnmarshalText([]byte(signatureChainID)); err != nil {
		return nil, fmt.Errorf("signature chain id %q: %w", signatureChainID, err)
	}
	domain := apitypes.TypedDataDomain{
		Name:              "HyperliquidSignTransaction",
		Version:           "1",
		ChainId:           &chainID,
		VerifyingContract: zeroAddress,
	}
	return typedDigest(domain, primaryType, fields, message)
}

func typedDigest(domain apitypes.TypedDataDomain, primaryType string, fields []apitypes.Type, message apitypes.TypedDataMessage) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(apitypes.TypedData{
		Types:       apitypes.Types{"EIP712Domain": domainFields, primaryType: fields},
		PrimaryType: primaryType,
		Domain:      domain,
		Message:     message,
	})
	return digest, err
}

func chainName(mainnet bool) string {
	if mainnet {
		return "Mainnet"
	}
	return "Testnet"
}
