package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/storacha/certifier/internal/certificate"
)

// CertificationABI is the interface of the deployed certification contract.
const CertificationABI = `[
  {"type":"function","name":"generateCertificate","stateMutability":"nonpayable","inputs":[
    {"name":"_certificate_id","type":"string"},{"name":"_uid","type":"string"},
    {"name":"_candidate_name","type":"string"},{"name":"_course_name","type":"string"},
    {"name":"_org_name","type":"string"},{"name":"_ipfs_hash","type":"string"}],"outputs":[]},
  {"type":"function","name":"getCertificate","stateMutability":"view","inputs":[
    {"name":"_certificate_id","type":"string"}],"outputs":[
    {"name":"_uid","type":"string"},{"name":"_candidate_name","type":"string"},
    {"name":"_course_name","type":"string"},{"name":"_org_name","type":"string"},
    {"name":"_ipfs_hash","type":"string"}]},
  {"type":"function","name":"isVerified","stateMutability":"view","inputs":[
    {"name":"_certificate_id","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"certificateExists","stateMutability":"view","inputs":[
    {"name":"_certificate_id","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"invalidateCertificate","stateMutability":"nonpayable","inputs":[
    {"name":"_certificate_id","type":"string"}],"outputs":[]}
]`

// DefaultGasLimit is used for write transactions when none is configured.
const DefaultGasLimit uint64 = 2_000_000

// Backend is the subset of an ethereum client the contract ledger needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ContractLedger talks to the certification contract.
type ContractLedger struct {
	contract *bind.BoundContract
	backend  Backend
	auth     *bind.TransactOpts
	gasLimit uint64
	closer   func()
}

type ContractConfig struct {
	Endpoint        string
	ContractAddress string
	PrivateKey      string
	ChainID         int64
	GasLimit        uint64
}

// DialContract connects to an ethereum node and binds the contract at the
// configured address.
func DialContract(ctx context.Context, cfg ContractConfig) (*ContractLedger, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger private key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %w", ErrUnavailable, cfg.Endpoint, err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: failed to read chain id: %w", ErrUnavailable, err)
		}
	}

	l, err := NewContractLedger(client, common.HexToAddress(cfg.ContractAddress), key, chainID, cfg.GasLimit)
	if err != nil {
		client.Close()
		return nil, err
	}
	l.closer = client.Close
	log.Infow("Connected to certification contract",
		"endpoint", cfg.Endpoint,
		"contract", cfg.ContractAddress,
		"chain_id", chainID.String(),
		"sender", l.auth.From.Hex())
	return l, nil
}

// NewContractLedger binds the contract at address on backend, signing
// transactions with key.
func NewContractLedger(backend Backend, address common.Address, key *ecdsa.PrivateKey, chainID *big.Int, gasLimit uint64) (*ContractLedger, error) {
	parsed, err := abi.JSON(strings.NewReader(CertificationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	return &ContractLedger{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		backend:  backend,
		auth:     auth,
		gasLimit: gasLimit,
	}, nil
}

func (l *ContractLedger) Close() error {
	if l.closer != nil {
		l.closer()
	}
	return nil
}

func (l *ContractLedger) Write(ctx context.Context, fingerprint string, fields certificate.Fields, contentAddress string) error {
	exists, err := l.callBool(ctx, "certificateExists", fingerprint)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	return l.transact(ctx, "generateCertificate",
		fingerprint,
		fields.RegistrationNo,
		fields.StudentName,
		fields.CourseName,
		fields.Institution,
		contentAddress,
	)
}

func (l *ContractLedger) Read(ctx context.Context, fingerprint string) (*Entry, error) {
	ok, err := l.callBool(ctx, "isVerified", fingerprint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getCertificate", fingerprint); err != nil {
		return nil, classify("getCertificate", err)
	}
	if len(out) != 5 {
		return nil, fmt.Errorf("getCertificate returned %d values", len(out))
	}
	values := make([]string, len(out))
	for i, v := range out {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("getCertificate returned %T at %d", v, i)
		}
		values[i] = s
	}

	return &Entry{
		Fingerprint: fingerprint,
		Fields: certificate.Fields{
			RegistrationNo: values[0],
			StudentName:    values[1],
			CourseName:     values[2],
			Institution:    values[3],
		},
		ContentAddress: values[4],
	}, nil
}

func (l *ContractLedger) Invalidate(ctx context.Context, fingerprint string) error {
	ok, err := l.callBool(ctx, "isVerified", fingerprint)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return l.transact(ctx, "invalidateCertificate", fingerprint)
}

func (l *ContractLedger) Exists(ctx context.Context, fingerprint string) (bool, error) {
	return l.callBool(ctx, "isVerified", fingerprint)
}

func (l *ContractLedger) callBool(ctx context.Context, method, fingerprint string) (bool, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, fingerprint); err != nil {
		return false, classify(method, err)
	}
	if len(out) != 1 {
		return false, fmt.Errorf("%s returned %d values", method, len(out))
	}
	b, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s returned %T", method, out[0])
	}
	return b, nil
}

func (l *ContractLedger) transact(ctx context.Context, method string, params ...interface{}) error {
	opts := *l.auth
	opts.Context = ctx
	opts.GasLimit = l.gasLimit

	tx, err := l.contract.Transact(&opts, method, params...)
	if err != nil {
		return classify(method, err)
	}
	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return fmt.Errorf("%w: waiting for %s receipt: %w", ErrUnavailable, method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s transaction %s reverted", ErrRejected, method, tx.Hash().Hex())
	}
	log.Infow("Ledger transaction confirmed",
		"method", method,
		"tx", tx.Hash().Hex(),
		"block", receipt.BlockNumber.String(),
		"gas_used", receipt.GasUsed)
	return nil
}

// classify separates contract reverts from transport failures.
func classify(method string, err error) error {
	if strings.Contains(err.Error(), "revert") {
		return fmt.Errorf("%w: %s: %w", ErrRejected, method, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, method, err)
}
