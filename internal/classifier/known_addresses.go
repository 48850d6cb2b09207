package classifier

// Known exchange cold/hot wallets (subset; production deployments load
// comprehensive lists).
var knownExchanges = map[string]string{
	"0x3675da73ede475b0ae3e136726cb3c89d6038f41": "Binance 10",
	"0x28c6c06298d161e1adf123044e835ffac5fdebc8": "Kraken 11",
	"0xa7f1e9a266cd81991c07f81d7c0d9c2999f24a24": "Kraken 11 (alt)",
	"0xda9dfa130df4de4673b89022ee50aa2228f7daaa": "Exchange (generic)",
	"0x742d35cc6634c0532925a3b844bc9e7595f5beb3": "Kraken 8",
	"0x2e7dc97b0b55e77e77c90bcd0f7b13b3b9e7c822": "Kraken (alt)",
	"0x5e57b7a6c4aacb48c3d43a7fa1c0d23cc7a14eda": "Kraken Hot Wallet",
	"0x267be1c1d684f78cb4f6a176c4911b741e4ffdc0": "Coinbase Hot Wallet",
	"0x503828976d22510aad0201f7e4b2d7daf2de3992": "Coinbase Hot Wallet 2",
	"0xa910f92acdaf488fa6ef02174b80d0480194a969": "Binance Hot",
}

// Known protocol/token contracts.
var knownProtocols = map[string]string{
	"0x1111111254fb6c44bac0bed2854e76f90643097d": "1inch Router",
	"0x68b3465833fb72b70c6c7f6cad38ab5d38082ba0": "Uniswap v2/3 Router",
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": "Uniswap v2 Router",
	"0xe592427a0aece92de3edee1f18e0157c05861564": "Uniswap Swap Router",
	"0x6b175474e89094c44da98b954eedeac495271d0f": "Dai Stablecoin",
	"0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": "Wrapped BTC",
	"0xdac17f958d2ee523a2206206994597c13d831ec7": "Tether (USDT)",
	"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": "USDC",
}
