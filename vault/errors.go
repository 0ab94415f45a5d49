package vault

import "errors"

// ========== 错误定义 ==========
// 每种失败一个可判别的错误值，调用方用 errors.Is 区分

var (
	ErrInvalidSignersCount        = errors.New("invalid signers count")
	ErrInvalidThreshold           = errors.New("invalid m_threshold")
	ErrInvalidAdminThreshold      = errors.New("invalid admin threshold")
	ErrDuplicateSigner            = errors.New("duplicate signer detected")
	ErrInsufficientValidSignature = errors.New("not enough valid signatures from authorized signers")
	ErrUnauthorizedUser           = errors.New("unauthorized user")
	ErrInsufficientFunds          = errors.New("insufficient funds in treasury")
	ErrInvalidAmount              = errors.New("invalid amount (must be > 0)")
	ErrInvalidTreasuryOwner       = errors.New("treasury must be owned by system")
	ErrTicketExpired              = errors.New("ticket has expired")
	ErrNonceAlreadyUsed           = errors.New("nonce has already been used")
	ErrInvalidVault               = errors.New("invalid vault in ticket")
	ErrInvalidRecipient           = errors.New("invalid recipient in ticket")
	ErrInvalidNetwork             = errors.New("invalid network")
	ErrInsufficientSignatures     = errors.New("insufficient signatures provided")
	ErrInvalidSignature           = errors.New("invalid secp256k1 signature")
	ErrInvalidRecoveryID          = errors.New("invalid recovery id (must be 0, 1, 27, or 28)")
	ErrAssetNotWhitelisted        = errors.New("asset not whitelisted")
	ErrDuplicateAsset             = errors.New("duplicate asset in list")
	ErrNoDepositsProvided         = errors.New("no deposits provided")
	ErrNoWithdrawalsProvided      = errors.New("no withdrawals provided")
	ErrTokenAccountNotFound       = errors.New("token account not found")
	ErrUnexpectedTokenAccounts    = errors.New("unexpected duplicate token accounts")
	ErrTooManyTickets             = errors.New("too many tickets in bulk withdrawal")
	ErrDuplicateRequestID         = errors.New("duplicate request id in bulk withdrawal")
	ErrInvalidNonceAccount        = errors.New("invalid nonce account")
	ErrInsufficientAccounts       = errors.New("insufficient nonce accounts provided")
	ErrOverflow                   = errors.New("arithmetic overflow")
	ErrTooManyAssets              = errors.New("too many whitelisted assets")
)
