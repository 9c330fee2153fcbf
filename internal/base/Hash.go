package base

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

var LogFingerprint = NewLogCategory("Fingerprint")

const DigestSize = 32

/***************************************
 * Digest: a blake3-256 hash value
 *
 * Shared by cas.DataID (content hash) and the evaluation engine's key
 * fingerprint (§4.5) -- both want a fixed-size, hex-printable, sortable
 * digest with the same marshalling story.
 ***************************************/

type Digest [DigestSize]byte

func (x *Digest) Serialize(ar Archive) {
	ar.Raw(x[:])
}
func (x Digest) Slice() []byte {
	return x[:]
}
func (x Digest) String() string {
	return hex.EncodeToString(x[:])
}
func (x Digest) ShortString() string {
	return hex.EncodeToString(x[:8])
}
func (x Digest) Valid() bool {
	for _, it := range x {
		if it != 0 {
			return true
		}
	}
	return false
}
func (x Digest) Equals(other Digest) bool {
	return x == other
}
func (x Digest) Compare(other Digest) int {
	for i := range x {
		if x[i] != other[i] {
			if x[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
func (x *Digest) Set(str string) (err error) {
	data, err := hex.DecodeString(str)
	if err != nil {
		return err
	}
	if len(data) != DigestSize {
		return fmt.Errorf("digest: unexpected string length %q", str)
	}
	copy(x[:], data)
	return nil
}
func (x Digest) MarshalText() ([]byte, error) {
	buf := make([]byte, hex.EncodedLen(DigestSize))
	hex.Encode(buf, x[:])
	return buf, nil
}
func (x *Digest) UnmarshalText(data []byte) error {
	n, err := hex.Decode(x[:], data)
	if err == nil && n != DigestSize {
		err = fmt.Errorf("digest: unexpected string length %q", data)
	}
	return err
}

/***************************************
 * Digester pool: reuse blake3 hashers across hot-path hashing calls
 ***************************************/

var DigesterPool = NewRecycler(
	func() *blake3.Hasher {
		return blake3.New(DigestSize, nil)
	},
	func(digester *blake3.Hasher) {
		digester.Reset()
	})

// BytesDigest hashes a byte slice that already sits fully in memory.
func BytesDigest(data []byte) (result Digest) {
	digester := DigesterPool.Allocate()
	defer DigesterPool.Release(digester)
	digester.Write(data)
	copy(result[:], digester.Sum(nil))
	return
}

// ReaderDigest streams an io.Reader through the digester page by page,
// without holding the whole input in memory.
func ReaderDigest(rd io.Reader) (result Digest, err error) {
	digester := DigesterPool.Allocate()
	defer DigesterPool.Release(digester)

	pageAlloc := GetBytesRecyclerBySize(LARGE_PAGE_CAPACITY)
	if _, err = TransientIoCopy(digester, rd, pageAlloc, false); err == nil {
		copy(result[:], digester.Sum(nil))
	}
	return
}

func StringDigest(in string) Digest {
	return BytesDigest(UnsafeBytesFromString(in))
}

// SerializeAnyDigest hashes an archive-encoded stream, seeded with an
// arbitrary prefix -- used to derive a key fingerprint from a struct's
// field dictionary (spec engine: fingerprint = blake3(type id ||
// sorted field tokens || effective version || resource contribution)).
func SerializeAnyDigest(write func(ar Archive) error, seed Digest) (result Digest, err error) {
	digester := DigesterPool.Allocate()
	defer DigesterPool.Release(digester)

	if seed.Valid() {
		digester.Write(seed[:])
	}

	ar := NewArchiveBinaryWriter(digester, AR_DETERMINISM)
	defer ar.Close()

	if err = write(&ar); err != nil {
		return
	}
	if err = ar.Error(); err != nil {
		return
	}

	copy(result[:], digester.Sum(nil))
	return
}

func SerializeDigest(value Serializable, seed Digest) Digest {
	digest, err := SerializeAnyDigest(func(ar Archive) error {
		ar.Serializable(value)
		return nil
	}, seed)
	LogPanicIfFailed(LogFingerprint, err)
	return digest
}
