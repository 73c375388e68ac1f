package registry

import "testing"

func TestNewRejectsEmptyAssets(t *testing.T) {
	_, err := New(nil, AssetDescriptor{Symbol: "USDC", Address: "0x1", Decimals: 6})
	if err == nil {
		t.Fatal("空资产列表应报错")
	}
}

func TestNewRejectsDuplicateSymbols(t *testing.T) {
	assets := []AssetDescriptor{
		{Symbol: "ETH", Address: "0x1", Decimals: 18},
		{Symbol: "ETH", Address: "0x2", Decimals: 18},
	}
	_, err := New(assets, AssetDescriptor{Symbol: "USDC", Address: "0x3", Decimals: 6})
	if err == nil {
		t.Fatal("重复符号应报错")
	}
}

func TestNewRejectsReferenceAsAsset(t *testing.T) {
	assets := []AssetDescriptor{
		{Symbol: "USDC", Address: "0x1", Decimals: 6},
	}
	_, err := New(assets, AssetDescriptor{Symbol: "USDC", Address: "0x1", Decimals: 6})
	if err == nil {
		t.Fatal("参考币不应同时出现在资产列表中")
	}
}

func TestNewRejectsNegativeDecimals(t *testing.T) {
	assets := []AssetDescriptor{
		{Symbol: "ETH", Address: "0x1", Decimals: -1},
	}
	_, err := New(assets, AssetDescriptor{Symbol: "USDC", Address: "0x2", Decimals: 6})
	if err == nil {
		t.Fatal("负小数位应报错")
	}
}

func TestDefaultIsValid(t *testing.T) {
	reg := Default()
	if _, err := New(reg.Assets, reg.Reference); err != nil {
		t.Fatalf("默认注册表应通过校验: %v", err)
	}
	if reg.Reference.Symbol != "USDC" {
		t.Fatalf("默认参考币应为 USDC, 实际 %s", reg.Reference.Symbol)
	}
}
