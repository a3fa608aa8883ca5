// Package ledger describes marketplace contract calls without executing
// them. Each helper validates its inputs and returns an Instruction that a
// wallet integration can sign and submit.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// DefaultCategory is the asset category used for camera captures.
const DefaultCategory = "camera-asset"

// Validation errors for contract calls.
var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidAssetID  = errors.New("invalid asset id")
	ErrContractNotSet  = errors.New("contract address not set")
	ErrMissingArgument = errors.New("missing argument")
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ValidateAddress checks the 0x-prefixed 20 byte hex form.
func ValidateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

// Arg is one positional argument of a call.
type Arg struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Instruction is a contract call ready to be signed elsewhere.
type Instruction struct {
	ContractAddress string   `json:"contract_address"`
	Function        string   `json:"function"`
	Args            []Arg    `json:"args"`
	Payable         bool     `json:"payable,omitempty"`
	View            bool     `json:"view,omitempty"`
	Steps           []string `json:"steps,omitempty"`
}

// Call renders the call as name(arg, ...).
func (i Instruction) Call() string {
	vals := make([]string, len(i.Args))
	for n, a := range i.Args {
		if a.Type == "string" {
			vals[n] = fmt.Sprintf("%q", a.Value)
		} else {
			vals[n] = a.Value
		}
	}
	return i.Function + "(" + strings.Join(vals, ", ") + ")"
}

// Describe renders the instruction as human readable text.
func (i Instruction) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contract: %s\n", i.ContractAddress)
	fmt.Fprintf(&b, "Function: %s\n", i.Call())
	for _, a := range i.Args {
		fmt.Fprintf(&b, "  %s (%s): %s\n", a.Name, a.Type, a.Value)
	}
	if i.Payable {
		b.WriteString("Payable: send ETH with the call\n")
	}
	for n, s := range i.Steps {
		fmt.Fprintf(&b, "%d. %s\n", n+1, s)
	}
	return b.String()
}

// Contract formats calls against one deployed marketplace.
type Contract struct {
	address string
}

// NewContract validates address and binds a Contract to it.
func NewContract(address string) (*Contract, error) {
	if address == "" {
		return nil, ErrContractNotSet
	}
	if err := ValidateAddress(address); err != nil {
		return nil, err
	}
	return &Contract{address: address}, nil
}

// Address is the bound contract address.
func (c *Contract) Address() string {
	return c.address
}

// Mint describes mintRWA(to, metadataURI, title, description, category).
func (c *Contract) Mint(owner, metadataURI, title, description, category string) (Instruction, error) {
	if err := ValidateAddress(owner); err != nil {
		return Instruction{}, err
	}
	if metadataURI == "" {
		return Instruction{}, fmt.Errorf("%w: metadata uri", ErrMissingArgument)
	}
	if title == "" {
		return Instruction{}, fmt.Errorf("%w: title", ErrMissingArgument)
	}
	if category == "" {
		category = DefaultCategory
	}
	return Instruction{
		ContractAddress: c.address,
		Function:        "mintRWA",
		Args: []Arg{
			{Name: "to", Type: "address", Value: owner},
			{Name: "metadataURI", Type: "string", Value: metadataURI},
			{Name: "title", Type: "string", Value: title},
			{Name: "description", Type: "string", Value: description},
			{Name: "category", Type: "string", Value: category},
		},
		Steps: []string{
			"Approve the transaction in your wallet",
			"Wait for confirmation; the AssetMinted event carries the new token id",
			"Network gas fees apply",
		},
	}, nil
}

// List describes listAsset(tokenId, price) with price given in ETH.
func (c *Contract) List(assetID, priceEth string) (Instruction, error) {
	id, wei, err := idAndWei(assetID, priceEth)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ContractAddress: c.address,
		Function:        "listAsset",
		Args: []Arg{
			{Name: "tokenId", Type: "uint256", Value: id},
			{Name: "price", Type: "uint256", Value: wei},
		},
		Steps: []string{"Sign listAsset with the wallet that owns the token"},
	}, nil
}

// UpdatePrice describes updatePrice(tokenId, newPrice) with price in ETH.
func (c *Contract) UpdatePrice(assetID, priceEth string) (Instruction, error) {
	id, wei, err := idAndWei(assetID, priceEth)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ContractAddress: c.address,
		Function:        "updatePrice",
		Args: []Arg{
			{Name: "tokenId", Type: "uint256", Value: id},
			{Name: "newPrice", Type: "uint256", Value: wei},
		},
	}, nil
}

// CancelListing withdraws assetID from sale.
func (c *Contract) CancelListing(assetID string) (Instruction, error) {
	return c.tokenCall("cancelListing", assetID, false, false)
}

// Buy describes the payable buyAsset(tokenId). The value to send is the
// current listing price, which the caller reads with getListing first.
func (c *Contract) Buy(assetID string) (Instruction, error) {
	in, err := c.tokenCall("buyAsset", assetID, true, false)
	if err != nil {
		return Instruction{}, err
	}
	id := in.Args[0].Value
	in.Steps = []string{
		fmt.Sprintf("Read the listing price with getListing(%s)", id),
		fmt.Sprintf("Call buyAsset(%s) sending exactly the listing price", id),
		"The asset transfers to the buyer; seller earnings minus the platform fee become withdrawable",
	}
	return in, nil
}

// WithdrawEarnings collects the seller balance. It takes no arguments.
func (c *Contract) WithdrawEarnings() Instruction {
	return Instruction{
		ContractAddress: c.address,
		Function:        "withdrawEarnings",
		Args:            []Arg{},
	}
}

// GetListing describes the view returning {tokenId, seller, price, isActive, listedAt}.
func (c *Contract) GetListing(assetID string) (Instruction, error) {
	return c.tokenCall("getListing", assetID, false, true)
}

// GetAssetMetadata describes the view returning
// {title, description, category, mintedAt, originalMinter}.
func (c *Contract) GetAssetMetadata(assetID string) (Instruction, error) {
	return c.tokenCall("getAssetMetadata", assetID, false, true)
}

func (c *Contract) tokenCall(fn, assetID string, payable, view bool) (Instruction, error) {
	id, err := ParseAssetID(assetID)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ContractAddress: c.address,
		Function:        fn,
		Args:            []Arg{{Name: "tokenId", Type: "uint256", Value: id}},
		Payable:         payable,
		View:            view,
	}, nil
}

// ParseAssetID normalizes a non-negative decimal token id.
func ParseAssetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAssetID, s)
	}
	return id.String(), nil
}

// EthToWei converts a decimal ETH amount to wei exactly. Amounts with more
// than 18 decimals or that are not positive are rejected.
func EthToWei(priceEth string) (*big.Int, error) {
	s := strings.TrimSpace(priceEth)
	r, ok := new(big.Rat).SetString(s)
	if !ok || strings.ContainsAny(s, "/eE") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrice, priceEth)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q must be positive", ErrInvalidPrice, priceEth)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEth))
	if !r.IsInt() {
		return nil, fmt.Errorf("%w: %q has more than 18 decimals", ErrInvalidPrice, priceEth)
	}
	return new(big.Int).Set(r.Num()), nil
}

func idAndWei(assetID, priceEth string) (string, string, error) {
	id, err := ParseAssetID(assetID)
	if err != nil {
		return "", "", err
	}
	wei, err := EthToWei(priceEth)
	if err != nil {
		return "", "", err
	}
	return id, wei.String(), nil
}
