package space

import (
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// BlockType represents the severity of a member block.
type BlockType string

const (
	// BlockSoft restricts the member to read-only access.
	BlockSoft BlockType = "soft"
	// BlockHard denies all access including reads.
	BlockHard BlockType = "hard"
)

// IsValid checks if the block type is valid.
func (b BlockType) IsValid() bool {
	return b == BlockSoft || b == BlockHard
}

// String returns the string representation of the block type.
func (b BlockType) String() string {
	return string(b)
}

// ParseBlockType parses a string to a BlockType.
func ParseBlockType(s string) (BlockType, bool) {
	b := BlockType(s)
	return b, b.IsValid()
}

// Block describes an active restriction on a membership. A membership holds a
// nil *Block when it is active, so a block type without blocked status cannot
// be represented.
type Block struct {
	blockType BlockType
	expiresAt *time.Time
	blockedBy shared.ID
	blockedAt time.Time
}

// NewBlock creates a new Block.
func NewBlock(blockType BlockType, expiresAt *time.Time, blockedBy shared.ID) (*Block, error) {
	if !blockType.IsValid() {
		return nil, fmt.Errorf("%w: invalid block type", shared.ErrValidation)
	}
	if blockedBy.IsZero() {
		return nil, fmt.Errorf("%w: blockedBy is required", shared.ErrValidation)
	}
	if expiresAt != nil && !expiresAt.After(time.Now().UTC()) {
		return nil, fmt.Errorf("%w: block expiry must be in the future", shared.ErrValidation)
	}
	return &Block{
		blockType: blockType,
		expiresAt: expiresAt,
		blockedBy: blockedBy,
		blockedAt: time.Now().UTC(),
	}, nil
}

// ReconstituteBlock recreates a Block from persistence.
func ReconstituteBlock(blockType BlockType, expiresAt *time.Time, blockedBy shared.ID, blockedAt time.Time) *Block {
	return &Block{
		blockType: blockType,
		expiresAt: expiresAt,
		blockedBy: blockedBy,
		blockedAt: blockedAt,
	}
}

// Type returns the block type.
func (b *Block) Type() BlockType {
	return b.blockType
}

// ExpiresAt returns when the block expires (nil = indefinite).
func (b *Block) ExpiresAt() *time.Time {
	return b.expiresAt
}

// BlockedBy returns the user who applied the block.
func (b *Block) BlockedBy() shared.ID {
	return b.blockedBy
}

// BlockedAt returns when the block was applied.
func (b *Block) BlockedAt() time.Time {
	return b.blockedAt
}

// ExpiredAt reports whether the block has lapsed at the given instant.
// An expired block is treated as lifted by access evaluation even before
// the maintenance sweep flips the stored status back to active.
func (b *Block) ExpiredAt(now time.Time) bool {
	return b.expiresAt != nil && !now.Before(*b.expiresAt)
}
