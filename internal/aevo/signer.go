package aevo

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
)

const domainName = "Aevo Mainnet"

var domainTypes = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

var orderTypes = []apitypes.Type{
	{Name: "maker", Type: "address"},
	{Name: "isBuy", Type: "bool"},
	{Name: "limitPrice", Type: "uint256"},
	{Name: "amount", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
	{Name: "instrument", Type: "uint256"},
	{Name: "timestamp", Type: "uint256"},
}

var withdrawTypes = []apitypes.Type{
	{Name: "collateral", Type: "address"},
	{Name: "to", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "salt", Type: "uint256"},
	{Name: "data", Type: "bytes32"},
}

// OrderMessage holds the signed order fields. Amounts are in 1e6 units.
type OrderMessage struct {
	Maker      common.Address
	IsBuy      bool
	LimitPrice *big.Int
	Amount     *big.Int
	Salt       *big.Int
	Instrument *big.Int
	Timestamp  int64
}

type WithdrawMessage struct {
	Collateral common.Address
	To         common.Address
	Amount     *big.Int
	Salt       *big.Int
	Data       common.Hash
}

type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(hexKey string) (*Signer, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, errors.New("aevo signing key is required")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *Signer) SignOrder(msg OrderMessage, chainID int64) (string, error) {
	digest, err := typedDataHash("Order", orderTypes, chainID, apitypes.TypedDataMessage{
		"maker":      msg.Maker.Hex(),
		"isBuy":      msg.IsBuy,
		"limitPrice": msg.LimitPrice.String(),
		"amount":     msg.Amount.String(),
		"salt":       msg.Salt.String(),
		"instrument": msg.Instrument.String(),
		"timestamp":  big.NewInt(msg.Timestamp).String(),
	})
	if err != nil {
		return "", err
	}
	return s.sign(digest)
}

func (s *Signer) SignWithdraw(msg WithdrawMessage, chainID int64) (string, error) {
	digest, err := typedDataHash("Withdraw", withdrawTypes, chainID, apitypes.TypedDataMessage{
		"collateral": msg.Collateral.Hex(),
		"to":         msg.To.Hex(),
		"amount":     msg.Amount.String(),
		"salt":       msg.Salt.String(),
		"data":       hexutil.Encode(msg.Data.Bytes()),
	})
	if err != nil {
		return "", err
	}
	return s.sign(digest)
}

func (s *Signer) sign(digest []byte) (string, error) {
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func typedDataHash(primaryType string, fields []apitypes.Type, chainID int64, message apitypes.TypedDataMessage) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainTypes,
			primaryType:    fields,
		},
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    domainName,
			Version: "1",
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: message,
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, err
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte("\x19\x01"), domainHash, messageHash), nil
}

// withdrawData is keccak(abi.encode(socketFees, gasLimit, connector)).
func withdrawData(socketFees, gasLimit *big.Int, connector common.Address) (common.Hash, error) {
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return common.Hash{}, err
	}
	args := abi.Arguments{{Type: uint256Ty}, {Type: uint256Ty}, {Type: addressTy}}
	packed, err := args.Pack(socketFees, gasLimit, connector)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// newSalt draws a random 128-bit salt.
func newSalt() *big.Int {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:])
}
