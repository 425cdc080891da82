package analyzer

import (
	"firstbuyers/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// AddressSet 地址集合，common.Address 已按字节比较，大小写无关
type AddressSet map[common.Address]struct{}

// NewAddressSet 创建地址集合
func NewAddressSet(addrs ...common.Address) AddressSet {
	set := make(AddressSet, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}

// Add 添加地址
func (s AddressSet) Add(addr common.Address) {
	s[addr] = struct{}{}
}

// Contains 判断地址是否在集合中
func (s AddressSet) Contains(addr common.Address) bool {
	_, ok := s[addr]
	return ok
}

// BuildExclusions 构造排除集合：合约自身、零地址、销毁地址和配置的路由/LP地址
func BuildExclusions(contract common.Address, configured []string) AddressSet {
	set := NewAddressSet(contract, models.ZeroAddress, models.DeadAddress)
	for _, addr := range configured {
		if common.IsHexAddress(addr) {
			set.Add(common.HexToAddress(addr))
		}
	}
	return set
}

// Deduplicate 按首次出现顺序保留每个接收方的第一条转账
//
// 跳过铸造事件和排除集合中的接收方，达到 limit 后停止；limit<=0 表示不限。
func Deduplicate(events []models.TransferEvent, exclude AddressSet, limit int) []models.TransferEvent {
	seen := make(map[common.Address]struct{})
	var buyers []models.TransferEvent

	for _, event := range events {
		if limit > 0 && len(buyers) >= limit {
			break
		}
		if event.IsMint() {
			continue
		}
		if exclude.Contains(event.To) {
			continue
		}
		if _, ok := seen[event.To]; ok {
			continue
		}

		seen[event.To] = struct{}{}
		buyers = append(buyers, event)
	}

	return buyers
}
