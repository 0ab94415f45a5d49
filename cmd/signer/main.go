// cmd/signer/main.go
// 离线签名工具：生成签名人密钥、计算票据规范哈希、产出可恢复签名。
// 票据以 JSON 文件给出，输出可以直接拼进 /withdraw 等接口的请求体。
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"custody/utils"
	"custody/vault"
	"custody/vm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: signer <command> [flags]

commands:
  keygen                            生成一把签名人私钥
  hash    -kind K -ticket FILE      计算票据规范哈希
  sign    -kind K -ticket FILE -key PRIV   对票据哈希签名
          (或 -hash 0x… -key PRIV 直接签预先算好的哈希)
  amount  -value V -decimals N      人类可读金额换算成基础单位

kinds: withdraw | bulkWithdraw | addAsset | removeAsset |
       rotateValidators | adminDeposit | adminWithdraw
`)
	os.Exit(2)
}

func fatal(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "signer: "+format+"\n", v...)
	os.Exit(1)
}

// ticketFromFile 按请求种类解码票据 JSON
func ticketFromFile(kind, path string) (vault.Ticket, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t vault.Ticket
	switch kind {
	case vm.KindWithdraw, vm.KindAdminWithdraw:
		t = &vault.WithdrawalTicket{}
	case vm.KindBulkWithdraw:
		t = &vault.BulkWithdrawalTicket{}
	case vm.KindAddAsset:
		t = &vault.AddAssetTicket{}
	case vm.KindRemoveAsset:
		t = &vault.RemoveAssetTicket{}
	case vm.KindRotateValidators:
		t = &vault.RotateValidatorsTicket{}
	case vm.KindAdminDeposit:
		t = &vault.AdminDepositTicket{}
	default:
		return nil, fmt.Errorf("unknown ticket kind %q", kind)
	}
	if err := json.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse ticket %s: %w", path, err)
	}
	return t, nil
}

func cmdKeygen(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	_ = fs.Parse(args)

	priv, err := utils.GenerateSigningKey()
	if err != nil {
		fatal("generate key: %v", err)
	}
	fmt.Printf("private key: %s\n", hex.EncodeToString(priv.Serialize()))
	fmt.Printf("signer address: %s\n", utils.SignerAddress(priv).Hex())
}

func cmdHash(args []string) {
	fs := flag.NewFlagSet("hash", flag.ExitOnError)
	kind := fs.String("kind", "", "ticket kind")
	ticketPath := fs.String("ticket", "", "ticket JSON file")
	_ = fs.Parse(args)
	if *kind == "" || *ticketPath == "" {
		usage()
	}

	t, err := ticketFromFile(*kind, *ticketPath)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(t.Hash().Hex())
}

func cmdSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	kind := fs.String("kind", "", "ticket kind")
	ticketPath := fs.String("ticket", "", "ticket JSON file")
	hashStr := fs.String("hash", "", "precomputed ticket hash (0x+64 hex), alternative to -ticket")
	keyStr := fs.String("key", "", "private key (hex or WIF)")
	_ = fs.Parse(args)
	if *keyStr == "" || (*hashStr == "" && (*kind == "" || *ticketPath == "")) {
		usage()
	}

	priv, err := utils.ParseSecp256k1PrivateKey(*keyStr)
	if err != nil {
		fatal("parse private key: %v", err)
	}

	var hash common.Hash
	if *hashStr != "" {
		item, ok := utils.ConvertDigestToItem(*hashStr)
		if !ok {
			fatal("invalid ticket hash %q", *hashStr)
		}
		hash = common.Hash(item)
	} else {
		t, err := ticketFromFile(*kind, *ticketPath)
		if err != nil {
			fatal("%v", err)
		}
		hash = t.Hash()
	}

	sig, recid := utils.SignRecoverable(priv, hash)

	out := struct {
		TicketHash string                    `json:"ticket_hash"`
		Signer     string                    `json:"signer"`
		Signature  vault.SignerWithSignature `json:"signature"`
	}{
		TicketHash: hash.Hex(),
		Signer:     utils.SignerAddress(priv).Hex(),
		Signature:  vault.SignerWithSignature{Signature: sig, RecoveryID: recid},
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		fatal("encode output: %v", err)
	}
}

func cmdAmount(args []string) {
	fs := flag.NewFlagSet("amount", flag.ExitOnError)
	value := fs.String("value", "", "human-readable amount, e.g. 1.5")
	decimals := fs.Int("decimals", 9, "token decimals")
	_ = fs.Parse(args)
	if *value == "" {
		usage()
	}

	d, err := decimal.NewFromString(*value)
	if err != nil {
		fatal("parse amount: %v", err)
	}
	base := d.Shift(int32(*decimals))
	if !base.IsInteger() {
		fatal("amount %s has more than %d decimal places", *value, *decimals)
	}
	if base.IsNegative() {
		fatal("amount must be positive")
	}
	// uint64 上限检查，票据金额就是 uint64
	max := decimal.RequireFromString("18446744073709551615")
	if base.GreaterThan(max) {
		fatal("amount %s overflows uint64 base units", *value)
	}
	fmt.Println(base.String())
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "keygen":
		cmdKeygen(os.Args[2:])
	case "hash":
		cmdHash(os.Args[2:])
	case "sign":
		cmdSign(os.Args[2:])
	case "amount":
		cmdAmount(os.Args[2:])
	default:
		usage()
	}
}
