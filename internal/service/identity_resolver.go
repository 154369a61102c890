package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dushixiang/quanterra/internal/metric"
	"github.com/dushixiang/quanterra/internal/protocol"
)

// ErrMappingConflict 地址与标识的对应关系不是一一对应
var ErrMappingConflict = errors.New("identity mapping conflict")

// MappingConflictError 同一标识对应多个地址，或同一地址对应多个标识
type MappingConflictError struct {
	Identity  string
	Address   string
	Addresses []string // 冲突的地址（标识重复时）
	Other     string   // 冲突的另一个标识（地址重复时）
}

func (e *MappingConflictError) Error() string {
	if e.Other != "" {
		return fmt.Sprintf("%v: address %s maps to both %s and %s", ErrMappingConflict, e.Address, e.Identity, e.Other)
	}
	return fmt.Sprintf("%v: identity %s is shared by addresses %v", ErrMappingConflict, e.Identity, e.Addresses)
}

func (e *MappingConflictError) Is(target error) bool {
	return target == ErrMappingConflict
}

// BuildIdentityTable 由台站清单构建 地址 -> 标识 表
func BuildIdentityTable(devices []protocol.Device) (map[string]string, error) {
	table := make(map[string]string, len(devices))
	for _, d := range devices {
		if existing, ok := table[d.Address]; ok && existing != d.Identity {
			return nil, &MappingConflictError{Address: d.Address, Identity: existing, Other: d.Identity}
		}
		table[d.Address] = d.Identity
	}
	if err := checkInjective(table); err != nil {
		return nil, err
	}
	return table, nil
}

// Resolution 标识解析结果
type Resolution struct {
	Records  map[string]metric.Record // identity -> record
	Unmapped []string                 // 没有对应标识的地址（已排序）
}

// ResolveIdentities 将以地址为 key 的采集结果转换为以台站标识为 key
// 对照表不是单射时返回 ErrMappingConflict，且不产生任何输出
func ResolveIdentities(records map[string]metric.Record, addressToIdentity map[string]string) (*Resolution, error) {
	if err := checkInjective(addressToIdentity); err != nil {
		return nil, err
	}

	res := &Resolution{
		Records: make(map[string]metric.Record, len(records)),
	}
	for address, record := range records {
		identity, ok := addressToIdentity[address]
		if !ok || identity == "" {
			res.Unmapped = append(res.Unmapped, address)
			continue
		}
		res.Records[identity] = record
	}
	sort.Strings(res.Unmapped)
	return res, nil
}

// checkInjective 检查不同地址不会映射到同一个标识
func checkInjective(addressToIdentity map[string]string) error {
	owners := make(map[string][]string, len(addressToIdentity))
	for address, identity := range addressToIdentity {
		if identity == "" {
			continue
		}
		owners[identity] = append(owners[identity], address)
	}

	var conflicts []string
	for identity, addresses := range owners {
		if len(addresses) > 1 {
			conflicts = append(conflicts, identity)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}

	// 多个冲突时报告字典序最小的标识，保证错误信息稳定
	sort.Strings(conflicts)
	addresses := owners[conflicts[0]]
	sort.Strings(addresses)
	return &MappingConflictError{Identity: conflicts[0], Addresses: addresses}
}
