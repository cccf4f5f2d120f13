package protocol

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestNatUnmarshal(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		fails bool
	}{
		{"decimal string", `"12345"`, "12345", false},
		{"zero", `"0"`, "0", false},
		{"raw number", `12345`, "12345", false},
		{"hex string", `"0xff"`, "255", false},
		{"uppercase hex", `"0XFF"`, "255", false},
		{"beyond uint64", `"340282366920938463463374607431768211456"`, "340282366920938463463374607431768211456", false},
		{"negative string", `"-1"`, "", true},
		{"negative number", `-1`, "", true},
		{"garbage", `"12abc"`, "", true},
		{"empty string", `""`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var n Nat
			err := json.Unmarshal([]byte(tc.input), &n)
			if tc.fails {
				if err == nil {
					t.Fatalf("unmarshal %s succeeded with %s", tc.input, n.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal %s: %v", tc.input, err)
			}
			if n.String() != tc.want {
				t.Errorf("got %s, want %s", n.String(), tc.want)
			}
		})
	}
}

func TestNatMarshalIsDecimalString(t *testing.T) {
	big128 := new(big.Int)
	big128.SetString("340282366920938463463374607431768211455", 10)

	data, err := json.Marshal(NatFromBig(big128))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"340282366920938463463374607431768211455"` {
		t.Errorf("marshal = %s", data)
	}

	// the zero value marshals as zero, not null
	data, err = json.Marshal(Nat{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"0"` {
		t.Errorf("zero value marshal = %s", data)
	}
}

func TestNatToUint256(t *testing.T) {
	v, err := NewNat(42).ToUint256()
	if err != nil {
		t.Fatal(err)
	}
	if v.Uint64() != 42 {
		t.Errorf("got %d, want 42", v.Uint64())
	}

	overflow := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := NatFromBig(overflow).ToUint256(); err == nil {
		t.Error("2^256 fit into a uint256")
	}

	zero, err := Nat{}.ToUint256()
	if err != nil {
		t.Fatal(err)
	}
	if !zero.IsZero() {
		t.Error("unset Nat did not convert to zero")
	}
}

func TestTxErrorRoundTrip(t *testing.T) {
	data, err := json.Marshal(ErrorBody{Code: CodeInsufficientBalance, Message: "insufficient balance"})
	if err != nil {
		t.Fatal(err)
	}
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	txErr := &TxError{Code: body.Code, Message: body.Message}
	if CodeOf(txErr) != CodeInsufficientBalance {
		t.Errorf("code after round trip = %s", CodeOf(txErr))
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInsufficientBalance: 400,
		CodeValueTooSmall:       400,
		CodeUnauthorized:        403,
		CodeAccountNotFound:     404,
		CodeAccountExists:       409,
		CodeUnderlyingTransfer:  502,
		CodeRemoteCall:          502,
		CodeOther:               500,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
