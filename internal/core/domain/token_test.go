package domain

import (
	"errors"
	"testing"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		chain   Chain
		in      string
		want    string
		wantErr error
	}{
		{"evm checksum", ChainEVMMainnet, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", nil},
		{"evm lower with space", ChainEVMSidechain, " 0x55d398326f99059ff775485246999027b3197955 ", "0x55d398326f99059ff775485246999027b3197955", nil},
		{"evm no prefix", ChainEVMMainnet, "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", nil},
		{"evm short", ChainEVMMainnet, "0x1234", "", ErrInvalidAddress},
		{"solana keeps case", ChainSolana, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", nil},
		{"solana bad", ChainSolana, "not-base58-0OIl", "", ErrInvalidAddress},
		{"unknown chain", Chain("tron"), "T9yD14Nj9j7xAB4dbGeiX9h8unkKHxuWwb", "", ErrUnknownChain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.chain, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseChain(t *testing.T) {
	for _, c := range AllChains {
		got, err := ParseChain(string(c))
		if err != nil || got != c {
			t.Errorf("ParseChain(%s) = %s, %v", c, got, err)
		}
	}
	if _, err := ParseChain("bitcoin"); !errors.Is(err, ErrUnknownChain) {
		t.Errorf("expected ErrUnknownChain, got %v", err)
	}
}
