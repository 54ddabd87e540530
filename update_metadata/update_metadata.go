// Package update_metadata decodes the chromeos_update_engine manifest that
// describes an A/B OTA payload. Only the fields the extractor consumes are
// materialized; everything else on the wire is skipped. Field numbers follow
// update_engine's update_metadata.proto.
package update_metadata

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

type InstallOperation_Type int32

const (
	InstallOperation_REPLACE          InstallOperation_Type = 0
	InstallOperation_REPLACE_BZ       InstallOperation_Type = 1
	InstallOperation_MOVE             InstallOperation_Type = 2
	InstallOperation_BSDIFF           InstallOperation_Type = 3
	InstallOperation_SOURCE_COPY      InstallOperation_Type = 4
	InstallOperation_SOURCE_BSDIFF    InstallOperation_Type = 5
	InstallOperation_ZERO             InstallOperation_Type = 6
	InstallOperation_DISCARD          InstallOperation_Type = 7
	InstallOperation_REPLACE_XZ       InstallOperation_Type = 8
	InstallOperation_PUFFDIFF         InstallOperation_Type = 9
	InstallOperation_BROTLI_BSDIFF    InstallOperation_Type = 10
	InstallOperation_ZUCCHINI         InstallOperation_Type = 11
	InstallOperation_LZ4DIFF_BSDIFF   InstallOperation_Type = 12
	InstallOperation_LZ4DIFF_PUFFDIFF InstallOperation_Type = 13
	InstallOperation_ZSTD             InstallOperation_Type = 14
)

var installOperationTypeName = map[InstallOperation_Type]string{
	0:  "REPLACE",
	1:  "REPLACE_BZ",
	2:  "MOVE",
	3:  "BSDIFF",
	4:  "SOURCE_COPY",
	5:  "SOURCE_BSDIFF",
	6:  "ZERO",
	7:  "DISCARD",
	8:  "REPLACE_XZ",
	9:  "PUFFDIFF",
	10: "BROTLI_BSDIFF",
	11: "ZUCCHINI",
	12: "LZ4DIFF_BSDIFF",
	13: "LZ4DIFF_PUFFDIFF",
	14: "ZSTD",
}

func (t InstallOperation_Type) String() string {
	if s, ok := installOperationTypeName[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", int32(t))
}

// Default_DeltaArchiveManifest_BlockSize is the proto-declared default used
// when a manifest does not carry an explicit block size.
const Default_DeltaArchiveManifest_BlockSize uint32 = 4096

type Extent struct {
	StartBlock *uint64
	NumBlocks  *uint64
}

func (e *Extent) GetStartBlock() uint64 {
	if e != nil && e.StartBlock != nil {
		return *e.StartBlock
	}
	return 0
}

func (e *Extent) GetNumBlocks() uint64 {
	if e != nil && e.NumBlocks != nil {
		return *e.NumBlocks
	}
	return 0
}

type PartitionInfo struct {
	Size *uint64
	Hash []byte
}

func (p *PartitionInfo) GetSize() uint64 {
	if p != nil && p.Size != nil {
		return *p.Size
	}
	return 0
}

func (p *PartitionInfo) GetHash() []byte {
	if p != nil {
		return p.Hash
	}
	return nil
}

type InstallOperation struct {
	Type           *InstallOperation_Type
	DataOffset     *uint64
	DataLength     *uint64
	SrcExtents     []*Extent
	SrcLength      *uint64
	DstExtents     []*Extent
	DstLength      *uint64
	DataSha256Hash []byte
}

func (op *InstallOperation) GetType() InstallOperation_Type {
	if op != nil && op.Type != nil {
		return *op.Type
	}
	return InstallOperation_REPLACE
}

func (op *InstallOperation) GetDataOffset() uint64 {
	if op != nil && op.DataOffset != nil {
		return *op.DataOffset
	}
	return 0
}

func (op *InstallOperation) GetDataLength() uint64 {
	if op != nil && op.DataLength != nil {
		return *op.DataLength
	}
	return 0
}

func (op *InstallOperation) GetSrcExtents() []*Extent {
	if op != nil {
		return op.SrcExtents
	}
	return nil
}

func (op *InstallOperation) GetDstExtents() []*Extent {
	if op != nil {
		return op.DstExtents
	}
	return nil
}

func (op *InstallOperation) GetDataSha256Hash() []byte {
	if op != nil {
		return op.DataSha256Hash
	}
	return nil
}

type PartitionUpdate struct {
	PartitionName    *string
	OldPartitionInfo *PartitionInfo
	NewPartitionInfo *PartitionInfo
	Operations       []*InstallOperation
}

func (p *PartitionUpdate) GetPartitionName() string {
	if p != nil && p.PartitionName != nil {
		return *p.PartitionName
	}
	return ""
}

func (p *PartitionUpdate) GetNewPartitionInfo() *PartitionInfo {
	if p != nil {
		return p.NewPartitionInfo
	}
	return nil
}

func (p *PartitionUpdate) GetOperations() []*InstallOperation {
	if p != nil {
		return p.Operations
	}
	return nil
}

type DeltaArchiveManifest struct {
	BlockSize        *uint32
	SignaturesOffset *uint64
	SignaturesSize   *uint64
	MinorVersion     *uint32
	Partitions       []*PartitionUpdate
	MaxTimestamp     *int64
}

func (m *DeltaArchiveManifest) GetBlockSize() uint32 {
	if m != nil && m.BlockSize != nil {
		return *m.BlockSize
	}
	return Default_DeltaArchiveManifest_BlockSize
}

func (m *DeltaArchiveManifest) GetMinorVersion() uint32 {
	if m != nil && m.MinorVersion != nil {
		return *m.MinorVersion
	}
	return 0
}

func (m *DeltaArchiveManifest) GetPartitions() []*PartitionUpdate {
	if m != nil {
		return m.Partitions
	}
	return nil
}

func (m *DeltaArchiveManifest) GetMaxTimestamp() int64 {
	if m != nil && m.MaxTimestamp != nil {
		return *m.MaxTimestamp
	}
	return 0
}

// Unmarshal decodes a DeltaArchiveManifest from its wire form.
func (m *DeltaArchiveManifest) Unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.BlockSize = proto.Uint32(uint32(v))
			b = b[n:]
		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.SignaturesOffset = proto.Uint64(v)
			b = b[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.SignaturesSize = proto.Uint64(v)
			b = b[n:]
		case num == 12 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MinorVersion = proto.Uint32(uint32(v))
			b = b[n:]
		case num == 13 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p := new(PartitionUpdate)
			if err := p.unmarshal(v); err != nil {
				return err
			}
			m.Partitions = append(m.Partitions, p)
			b = b[n:]
		case num == 14 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MaxTimestamp = proto.Int64(int64(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (p *PartitionUpdate) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.PartitionName = proto.String(v)
			b = b[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			info := new(PartitionInfo)
			if err := info.unmarshal(v); err != nil {
				return err
			}
			p.OldPartitionInfo = info
			b = b[n:]
		case num == 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			info := new(PartitionInfo)
			if err := info.unmarshal(v); err != nil {
				return err
			}
			p.NewPartitionInfo = info
			b = b[n:]
		case num == 8 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op := new(InstallOperation)
			if err := op.unmarshal(v); err != nil {
				return err
			}
			p.Operations = append(p.Operations, op)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (info *PartitionInfo) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			info.Size = proto.Uint64(v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			info.Hash = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (op *InstallOperation) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			t := InstallOperation_Type(v)
			op.Type = &t
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op.DataOffset = proto.Uint64(v)
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op.DataLength = proto.Uint64(v)
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e := new(Extent)
			if err := e.unmarshal(v); err != nil {
				return err
			}
			op.SrcExtents = append(op.SrcExtents, e)
			b = b[n:]
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op.SrcLength = proto.Uint64(v)
			b = b[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e := new(Extent)
			if err := e.unmarshal(v); err != nil {
				return err
			}
			op.DstExtents = append(op.DstExtents, e)
			b = b[n:]
		case num == 7 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op.DstLength = proto.Uint64(v)
			b = b[n:]
		case num == 8 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			op.DataSha256Hash = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func (e *Extent) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.StartBlock = proto.Uint64(v)
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.NumBlocks = proto.Uint64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
