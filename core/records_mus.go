package core

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Binary serializers for the records kept in the shared store.
// Field order is part of the on-disk format: append new fields, never reorder.
// Timestamps are stored as Unix microseconds in UTC.

var (
	QuotaRecordMUS  = quotaRecordMUS{}
	CacheEntryMUS   = cacheEntryMUS{}
	WebResultsMUS   = webResultsMUS{}
	NotificationMUS = notificationMUS{}
)

type quotaRecordMUS struct{}

func (s quotaRecordMUS) Marshal(v QuotaRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.SubjectID, bs)
	n += ord.String.Marshal(v.Resource, bs[n:])
	n += ord.String.Marshal(v.Tier, bs[n:])
	n += varint.Int.Marshal(v.Allowance, bs[n:])
	n += varint.Int.Marshal(v.Consumed, bs[n:])
	n += marshalTime(v.WindowStart, bs[n:])
	return
}

func (s quotaRecordMUS) Unmarshal(bs []byte) (v QuotaRecord, n int, err error) {
	r := musReader{bs: bs}
	v.SubjectID = r.string()
	v.Resource = r.string()
	v.Tier = r.string()
	v.Allowance = r.int()
	v.Consumed = r.int()
	v.WindowStart = r.time()
	return v, r.n, r.err
}

func (s quotaRecordMUS) Size(v QuotaRecord) (size int) {
	size = ord.String.Size(v.SubjectID)
	size += ord.String.Size(v.Resource)
	size += ord.String.Size(v.Tier)
	size += varint.Int.Size(v.Allowance)
	size += varint.Int.Size(v.Consumed)
	return size + sizeTime(v.WindowStart)
}

type cacheEntryMUS struct{}

func (s cacheEntryMUS) Marshal(v CacheEntry, bs []byte) (n int) {
	n = ord.String.Marshal(v.Key, bs)
	n += ord.ByteSlice.Marshal(v.Payload, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return
}

func (s cacheEntryMUS) Unmarshal(bs []byte) (v CacheEntry, n int, err error) {
	r := musReader{bs: bs}
	v.Key = r.string()
	v.Payload = r.bytes()
	v.CreatedAt = r.time()
	return v, r.n, r.err
}

func (s cacheEntryMUS) Size(v CacheEntry) (size int) {
	size = ord.String.Size(v.Key)
	size += ord.ByteSlice.Size(v.Payload)
	return size + sizeTime(v.CreatedAt)
}

type webResultsMUS struct{}

func (s webResultsMUS) Marshal(v WebResults, bs []byte) (n int) {
	n = ord.String.Marshal(v.Query, bs)
	n += ord.String.Marshal(v.Answer, bs[n:])
	n += varint.Int.Marshal(len(v.Results), bs[n:])
	for _, res := range v.Results {
		n += ord.String.Marshal(res.Title, bs[n:])
		n += ord.String.Marshal(res.URL, bs[n:])
		n += ord.String.Marshal(res.Content, bs[n:])
		n += varint.Uint64.Marshal(math.Float64bits(res.Score), bs[n:])
	}
	n += marshalStrings(v.Images, bs[n:])
	return
}

func (s webResultsMUS) Unmarshal(bs []byte) (v WebResults, n int, err error) {
	r := musReader{bs: bs}
	v.Query = r.string()
	v.Answer = r.string()
	count := r.int()
	if r.err == nil && count > 0 {
		v.Results = make([]WebResult, 0, count)
		for i := 0; i < count && r.err == nil; i++ {
			v.Results = append(v.Results, WebResult{
				Title:   r.string(),
				URL:     r.string(),
				Content: r.string(),
				Score:   math.Float64frombits(r.uint64()),
			})
		}
	}
	v.Images = r.strings()
	return v, r.n, r.err
}

func (s webResultsMUS) Size(v WebResults) (size int) {
	size = ord.String.Size(v.Query)
	size += ord.String.Size(v.Answer)
	size += varint.Int.Size(len(v.Results))
	for _, res := range v.Results {
		size += ord.String.Size(res.Title)
		size += ord.String.Size(res.URL)
		size += ord.String.Size(res.Content)
		size += varint.Uint64.Size(math.Float64bits(res.Score))
	}
	return size + sizeStrings(v.Images)
}

type notificationMUS struct{}

func (s notificationMUS) Marshal(v Notification, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.SubjectID, bs[n:])
	n += ord.String.Marshal(string(v.Type), bs[n:])
	n += ord.String.Marshal(v.Message, bs[n:])
	n += varint.Int.Marshal(len(v.Data), bs[n:])
	for k, val := range v.Data {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(val, bs[n:])
	}
	n += ord.String.Marshal(v.DedupeKey, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	return
}

func (s notificationMUS) Unmarshal(bs []byte) (v Notification, n int, err error) {
	r := musReader{bs: bs}
	v.ID = r.string()
	v.SubjectID = r.string()
	v.Type = NotificationType(r.string())
	v.Message = r.string()
	count := r.int()
	if r.err == nil && count > 0 {
		v.Data = make(map[string]string, count)
		for i := 0; i < count && r.err == nil; i++ {
			k := r.string()
			v.Data[k] = r.string()
		}
	}
	v.DedupeKey = r.string()
	v.CreatedAt = r.time()
	return v, r.n, r.err
}

func (s notificationMUS) Size(v Notification) (size int) {
	size = ord.String.Size(v.ID)
	size += ord.String.Size(v.SubjectID)
	size += ord.String.Size(string(v.Type))
	size += ord.String.Size(v.Message)
	size += varint.Int.Size(len(v.Data))
	for k, val := range v.Data {
		size += ord.String.Size(k)
		size += ord.String.Size(val)
	}
	size += ord.String.Size(v.DedupeKey)
	return size + sizeTime(v.CreatedAt)
}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func marshalStrings(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return
}

func sizeStrings(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return
}

// musReader sequences Unmarshal calls and stops at the first error.
type musReader struct {
	bs  []byte
	n   int
	err error
}

func (r *musReader) string() (v string) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func (r *musReader) bytes() (v []byte) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = ord.ByteSlice.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func (r *musReader) int() (v int) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func (r *musReader) uint64() (v uint64) {
	if r.err != nil {
		return
	}
	var n int
	v, n, r.err = varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	return
}

func (r *musReader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	micro, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	if err != nil {
		return time.Time{}
	}
	return time.UnixMicro(micro).UTC()
}

func (r *musReader) strings() (v []string) {
	count := r.int()
	if r.err != nil || count <= 0 {
		return nil
	}
	v = make([]string, 0, count)
	for i := 0; i < count && r.err == nil; i++ {
		v = append(v, r.string())
	}
	return
}
