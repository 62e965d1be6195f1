// Package sstable implements the immutable on-disk B-tree (plus
// embedded bloom filter) that stores one generation of flushed or
// compacted key/value pairs. Ported from
// _examples/original_source/src/btree.rs: page 0 holds metadata,
// pages [leafs_offset, nodes_offset) hold sorted leaf data, pages
// [nodes_offset, bloom_offset) hold the B-tree index (built bottom-up,
// emitted top-down), and the remaining pages hold the bloom filter.
package sstable

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"bearkv/bloom_filter"
	"bearkv/dberror"
	"bearkv/file_system"
)

// entriesPerPage is the number of (key,value) or (key,page-number)
// pairs that fit in one page: (PageSize-8)/16.
const entriesPerPage = (file_system.PageSize - 8) / 16

const (
	// BearMagic identifies a valid SST metadata page.
	BearMagic = 0xBEA22

	leafOffset     = 1
	metadataOffset = 0
)

// Metadata is the fixed-layout content of an SST's page 0, matching
// BTreeMetadata byte for byte.
type Metadata struct {
	Magic       uint64
	LeafsOffset uint64
	NodesOffset uint64
	BloomOffset uint64
	TreeDepth   uint64
	Size        uint64
	BloomSize   uint64
	NumHashes   uint64
	NEntries    uint64
}

func metadataToPage(m Metadata) *file_system.Page {
	p := &file_system.Page{}
	fields := []uint64{m.Magic, m.LeafsOffset, m.NodesOffset, m.BloomOffset, m.TreeDepth, m.Size, m.BloomSize, m.NumHashes, m.NEntries}
	for i, f := range fields {
		binary.LittleEndian.PutUint64(p[i*8:], f)
	}
	return p
}

func metadataFromPage(p *file_system.Page) Metadata {
	read := func(i int) uint64 { return binary.LittleEndian.Uint64(p[i*8:]) }
	return Metadata{
		Magic:       read(0),
		LeafsOffset: read(1),
		NodesOffset: read(2),
		BloomOffset: read(3),
		TreeDepth:   read(4),
		Size:        read(5),
		BloomSize:   read(6),
		NumHashes:   read(7),
		NEntries:    read(8),
	}
}

func pageLength(p *file_system.Page) uint64 {
	return binary.LittleEndian.Uint64(p[0:8])
}

func setPageLength(p *file_system.Page, n uint64) {
	binary.LittleEndian.PutUint64(p[0:8], n)
}

func pagePair(p *file_system.Page, i int) (key, value uint64) {
	off := 8 + i*16
	return binary.LittleEndian.Uint64(p[off:]), binary.LittleEndian.Uint64(p[off+8:])
}

func setPagePair(p *file_system.Page, i int, key, value uint64) {
	off := 8 + i*16
	binary.LittleEndian.PutUint64(p[off:], key)
	binary.LittleEndian.PutUint64(p[off+8:], value)
}

// PairSource yields sorted (key,value) pairs for Write to consume.
type PairSource interface {
	Next() (key, value uint64, ok bool, err error)
}

type pair [2]uint64

// createTree builds the B-tree index from the largest key of each leaf
// page, grouping up to n entries per node. It returns levels ordered
// root-to-leaf; the bottom level's pairs reference leaf indices
// (relative to the leaf region's first page), every other level's pairs reference sequential child ids
// assigned in root-to-leaf, left-to-right order. Ported from
// btree.rs::create_tree.
func createTree(largestKeys, leafPages []uint64, n int) [][][]pair {
	var forward [][]uint64ChunkResult
	current := largestKeys
	for {
		chunks := chunkUint64(current, n)
		forward = append(forward, chunks)
		if len(chunks) <= 1 {
			break
		}
		next := make([]uint64, len(chunks))
		for i, c := range chunks {
			next[i] = c[len(c)-1]
		}
		current = next
	}

	// Reverse to go from root to leaves.
	for i, j := 0, len(forward)-1; i < j; i, j = i+1, j-1 {
		forward[i], forward[j] = forward[j], forward[i]
	}

	result := make([][][]pair, len(forward))
	nextID := uint64(1)

	for levelIdx, level := range forward {
		if levelIdx == len(forward)-1 {
			leafChunks := chunkUint64(leafPages, n)
			bottom := make([][]pair, len(level))
			for i, chunk := range level {
				pairs := make([]pair, len(chunk))
				for j, v := range chunk {
					pairs[j] = pair{v, leafChunks[i][j]}
				}
				bottom[i] = pairs
			}
			result[levelIdx] = bottom
		} else {
			withIDs := make([][]pair, len(level))
			for i, chunk := range level {
				pairs := make([]pair, len(chunk))
				for j, v := range chunk {
					pairs[j] = pair{v, nextID}
					nextID++
				}
				withIDs[i] = pairs
			}
			result[levelIdx] = withIDs
		}
	}
	return result
}

// uint64ChunkResult names the element type returned by chunkUint64,
// kept distinct only for readability at the createTree call site.
type uint64ChunkResult = []uint64

func chunkUint64(s []uint64, n int) []uint64ChunkResult {
	if len(s) == 0 {
		return nil
	}
	var out []uint64ChunkResult
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out
}

func flattenLevels(levels [][][]pair) [][]pair {
	var out [][]pair
	for _, lvl := range levels {
		out = append(out, lvl...)
	}
	return out
}

// Write emits a complete SST from pairs (which must yield keys in
// strictly ascending order) and returns its metadata and bloom filter.
func Write(fs *file_system.FileSystem, fileID file_system.FileID, pairs PairSource, nEntriesHint int, bitsPerEntry float64) (Metadata, *bloom_filter.Filter, error) {
	filter := bloom_filter.Empty(nEntriesHint, bitsPerEntry)

	var largestKeys, largestPages []uint64
	var leafCount uint64
	var nEntries uint64

	writeNextLeaf := func(page *file_system.Page) (bool, error) {
		var length uint64
		for length < entriesPerPage {
			k, v, ok, err := pairs.Next()
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			filter.Insert(k)
			nEntries++
			setPagePair(page, int(length), k, v)
			length++
		}
		setPageLength(page, length)
		if length > 0 {
			lastKey, _ := pagePair(page, int(length-1))
			largestKeys = append(largestKeys, lastKey)
			largestPages = append(largestPages, leafCount)
			leafCount++
		}
		return length > 0, nil
	}

	leafPagesWritten, err := fs.WriteFile(fileID.Page(leafOffset), writeNextLeaf)
	if err != nil {
		return Metadata{}, nil, err
	}
	nodesOffset := uint64(leafOffset) + uint64(leafPagesWritten)

	tree := createTree(largestKeys, largestPages, entriesPerPage)
	treeDepth := uint64(len(tree))
	flatPages := flattenLevels(tree)

	pageIdx := 0
	writeNextBTreePage := func(page *file_system.Page) (bool, error) {
		if pageIdx >= len(flatPages) {
			return false, nil
		}
		chunk := flatPages[pageIdx]
		pageIdx++
		for i, pr := range chunk {
			setPagePair(page, i, pr[0], pr[1])
		}
		setPageLength(page, uint64(len(chunk)))
		return len(chunk) > 0, nil
	}

	nodesWritten, err := fs.WriteFile(fileID.Page(nodesOffset), writeNextBTreePage)
	if err != nil {
		return Metadata{}, nil, err
	}

	numHashes := uint64(filter.NumHashes())
	bloomBytes := filter.Bytes()
	bloomOffset := nodesOffset + uint64(nodesWritten)
	bloomByteIdx := 0
	var bloomSize uint64

	writeNextBloomPage := func(page *file_system.Page) (bool, error) {
		n := 0
		for n < file_system.PageSize && bloomByteIdx < len(bloomBytes) {
			page[n] = bloomBytes[bloomByteIdx]
			bloomByteIdx++
			n++
		}
		bloomSize += uint64(n)
		return n > 0, nil
	}

	if _, err := fs.WriteFile(fileID.Page(bloomOffset), writeNextBloomPage); err != nil {
		return Metadata{}, nil, err
	}

	metadata := Metadata{
		Magic:       BearMagic,
		LeafsOffset: leafOffset,
		NodesOffset: nodesOffset,
		BloomOffset: bloomOffset,
		TreeDepth:   treeDepth,
		Size:        bloomOffset + bloomSize,
		BloomSize:   bloomSize,
		NumHashes:   numHashes,
		NEntries:    nEntries,
	}

	writeCalls := 0
	writeMetadataPage := func(page *file_system.Page) (bool, error) {
		writeCalls++
		*page = *metadataToPage(metadata)
		return writeCalls == 1, nil
	}
	if _, err := fs.WriteFile(fileID.Page(metadataOffset), writeMetadataPage); err != nil {
		return Metadata{}, nil, err
	}

	return metadata, filter, nil
}

// Open reads an SST's metadata and reconstructs its bloom filter.
func Open(fs *file_system.FileSystem, fileID file_system.FileID) (Metadata, *bloom_filter.Filter, error) {
	page, err := fs.Get(fileID.Page(metadataOffset))
	if err != nil {
		return Metadata{}, nil, err
	}
	metadata := metadataFromPage(page)

	if metadata.Magic != BearMagic {
		return Metadata{}, nil, errors.Wrap(dberror.ErrCorruptSst, "bad magic number")
	}
	if metadata.NodesOffset <= metadata.LeafsOffset {
		return Metadata{}, nil, errors.Wrap(dberror.ErrCorruptSst, "nodes_offset <= leafs_offset")
	}

	bloomPagesNum := uint64(math.Ceil(float64(metadata.BloomSize) / file_system.PageSize))
	bloomVec := make([]byte, 0, metadata.BloomSize)
	for p := uint64(0); p < bloomPagesNum; p++ {
		bloomPage, err := fs.Get(fileID.Page(metadata.BloomOffset + p))
		if err != nil {
			return Metadata{}, nil, err
		}
		end := uint64(file_system.PageSize)
		if p == bloomPagesNum-1 && metadata.BloomSize%file_system.PageSize != 0 {
			end = metadata.BloomSize % file_system.PageSize
		}
		bloomVec = append(bloomVec, bloomPage[:end]...)
	}

	numBits := (metadata.BloomSize - metadata.NumHashes*4) * 8
	filter, err := bloom_filter.FromBytes(bloomVec, int(metadata.NumHashes), uint(numBits))
	if err != nil {
		return Metadata{}, nil, err
	}

	return metadata, filter, nil
}

// SearchResult locates a key within an SST's leaf pages. Exact is true
// when the key was found; otherwise (Page,Index) is its insertion
// point.
type SearchResult struct {
	Page  uint64
	Index int
	Exact bool
}

func binarySearchPage(p *file_system.Page, length uint64, key uint64) (idx int, exact bool) {
	lo, hi := 0, int(length)
	for lo < hi {
		mid := (lo + hi) / 2
		k, _ := pagePair(p, mid)
		if k < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < int(length) {
		k, _ := pagePair(p, lo)
		if k == key {
			return lo, true
		}
	}
	return lo, false
}

// SearchByDescent locates key by descending the B-tree index level by
// level, matching btree.rs::search's non-binary_search-feature body.
// Returns nil if key is beyond the SST's maximum key.
func SearchByDescent(fs *file_system.FileSystem, fileID file_system.FileID, metadata Metadata, key uint64) (*SearchResult, error) {
	rootPage, err := fs.Get(fileID.Page(metadata.NodesOffset))
	if err != nil {
		return nil, err
	}
	rootLen := pageLength(rootPage)
	lastKey, _ := pagePair(rootPage, int(rootLen-1))
	if lastKey < key {
		return nil, nil
	}

	currentPage := rootPage
	var nodeNumber uint64

	for level := uint64(0); level < metadata.TreeDepth; level++ {
		length := pageLength(currentPage)
		idx, _ := binarySearchPage(currentPage, length, key)
		_, pageNum := pagePair(currentPage, idx)
		nodeNumber = pageNum

		if level == metadata.TreeDepth-1 {
			break
		}

		nextPageNumber := nodeNumber + metadata.NodesOffset
		nextPage, err := fs.Get(fileID.Page(nextPageNumber))
		if err != nil {
			return nil, err
		}
		currentPage = nextPage
	}

	leafPageNumber := metadata.LeafsOffset + nodeNumber
	leafPage, err := fs.Get(fileID.Page(leafPageNumber))
	if err != nil {
		return nil, err
	}
	length := pageLength(leafPage)
	idx, exact := binarySearchPage(leafPage, length, key)

	return &SearchResult{Page: leafPageNumber, Index: idx, Exact: exact}, nil
}

// SearchByLeafScan locates key via binary search directly over leaf
// page numbers, matching btree.rs::search's binary_search-feature
// body. Returns the same results as SearchByDescent for any given SST.
func SearchByLeafScan(fs *file_system.FileSystem, fileID file_system.FileID, metadata Metadata, key uint64) (*SearchResult, error) {
	rootPage, err := fs.Get(fileID.Page(metadata.NodesOffset))
	if err != nil {
		return nil, err
	}
	rootLen := pageLength(rootPage)
	lastKey, _ := pagePair(rootPage, int(rootLen-1))
	if lastKey < key {
		return nil, nil
	}

	// Half-open range of candidate leaf pages; on exit start is the
	// first leaf whose last key is >= key, the same leaf the descent
	// reaches.
	start := metadata.LeafsOffset
	end := metadata.NodesOffset

search:
	for start < end {
		mid := (start + end) / 2
		leafCandidate, err := fs.Get(fileID.Page(mid))
		if err != nil {
			return nil, err
		}
		length := pageLength(leafCandidate)
		first, _ := pagePair(leafCandidate, 0)
		last, _ := pagePair(leafCandidate, int(length-1))

		switch {
		case key < first:
			end = mid
		case key > last:
			start = mid + 1
		default:
			start = mid
			break search
		}
	}
	pageNumber := start

	leaf, err := fs.Get(fileID.Page(pageNumber))
	if err != nil {
		return nil, err
	}
	length := pageLength(leaf)
	idx, exact := binarySearchPage(leaf, length, key)

	return &SearchResult{Page: pageNumber, Index: idx, Exact: exact}, nil
}

// Get returns the value stored for key, if present, using the default
// tree-descent search strategy.
func Get(fs *file_system.FileSystem, fileID file_system.FileID, metadata Metadata, key uint64) (uint64, bool, error) {
	res, err := SearchByDescent(fs, fileID, metadata, key)
	if err != nil {
		return 0, false, err
	}
	if res == nil || !res.Exact {
		return 0, false, nil
	}
	leafPage, err := fs.Get(fileID.Page(res.Page))
	if err != nil {
		return 0, false, err
	}
	_, value := pagePair(leafPage, res.Index)
	return value, true, nil
}

// SearchFunc is either SearchByDescent or SearchByLeafScan.
type SearchFunc func(fs *file_system.FileSystem, fileID file_system.FileID, metadata Metadata, key uint64) (*SearchResult, error)

// Iterator walks an SST's leaf pages in ascending key order within a
// closed [lo,hi] range, buffering one page at a time. Ported from
// btree.rs::BTreeIter.
type Iterator struct {
	fs       *file_system.FileSystem
	fileID   file_system.FileID
	metadata Metadata
	buffered *file_system.Page

	pageNumber uint64
	itemNumber int
	hi         uint64
	ended      bool
}

// NewIterator returns an Iterator over keys in [lo,hi], locating the
// starting position with search.
func NewIterator(fs *file_system.FileSystem, fileID file_system.FileID, metadata Metadata, lo, hi uint64, search SearchFunc) (*Iterator, error) {
	if lo > hi {
		return nil, errors.Wrap(dberror.ErrInvalidScanRange, "sstable scan: lo > hi")
	}

	res, err := search(fs, fileID, metadata, lo)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &Iterator{ended: true, hi: hi}, nil
	}
	return &Iterator{
		fs:         fs,
		fileID:     fileID,
		metadata:   metadata,
		pageNumber: res.Page,
		itemNumber: res.Index,
		hi:         hi,
	}, nil
}

// Next returns the next (key,value) pair in range.
func (it *Iterator) Next() (key, value uint64, ok bool, err error) {
	if it.ended {
		return 0, 0, false, nil
	}

	if it.buffered == nil {
		page, err := it.fs.Get(it.fileID.Page(it.pageNumber))
		if err != nil {
			return 0, 0, false, err
		}
		it.buffered = page
	}

	// If the position lies one past the page's last pair, step into the
	// next leaf before reading.
	if uint64(it.itemNumber) >= pageLength(it.buffered) {
		it.pageNumber++
		it.itemNumber = 0
		it.buffered = nil
		if it.pageNumber >= it.metadata.NodesOffset {
			it.ended = true
			return 0, 0, false, nil
		}
		page, err := it.fs.Get(it.fileID.Page(it.pageNumber))
		if err != nil {
			return 0, 0, false, err
		}
		it.buffered = page
	}

	k, v := pagePair(it.buffered, it.itemNumber)
	if k > it.hi {
		it.ended = true
		return 0, 0, false, nil
	}

	it.itemNumber++
	length := pageLength(it.buffered)
	if uint64(it.itemNumber) < length {
		return k, v, true, nil
	}

	it.pageNumber++
	it.itemNumber = 0
	it.buffered = nil
	if it.pageNumber >= it.metadata.NodesOffset {
		it.ended = true
	}

	return k, v, true, nil
}
