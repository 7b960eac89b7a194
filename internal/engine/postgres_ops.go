package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tsgraph/internal/metadata"
	"tsgraph/internal/param"
	"tsgraph/internal/timeutil"

	"github.com/jackc/pgx/v5"
)

func hashHex(h metadata.Hash) string { return h.String() }

func predecessorHashesJSON(md *metadata.Metadata) ([]byte, error) {
	hashes := make([]string, len(md.Predecessors))
	for i, e := range md.Predecessors {
		hashes[i] = hashHex(e.Node.Hash())
	}
	return json.Marshal(hashes)
}

func paramsJSON(v param.Value) ([]byte, error) {
	return json.Marshal(toJSONValue(v))
}

func toJSONValue(v param.Value) interface{} {
	switch v.Kind() {
	case param.KindNull:
		return nil
	case param.KindBool:
		return v.Bool()
	case param.KindInt:
		return v.Int()
	case param.KindFloat:
		return v.Float()
	case param.KindString:
		return v.String()
	case param.KindDatasetRef:
		ref := v.DatasetRefHash()
		return fmt.Sprintf("%x", ref[:])
	case param.KindTuple:
		elems := v.Tuple()
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			out[i] = toJSONValue(e)
		}
		return out
	case param.KindMap:
		out := make(map[string]interface{}, len(v.MapEntries()))
		for _, e := range v.MapEntries() {
			out[e.Key] = toJSONValue(e.Value)
		}
		return out
	default:
		return nil
	}
}

type jsonRow struct {
	Ts time.Time   `json:"ts"`
	V  interface{} `json:"v"`
}

func rowsToJSON(rows []Row) ([]byte, error) {
	out := make([]jsonRow, len(rows))
	for i, r := range rows {
		out[i] = jsonRow{Ts: r.Timestamp.Time(), V: r.Value}
	}
	return json.Marshal(out)
}

func rowsFromJSON(data []byte) ([]Row, error) {
	var raw []jsonRow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Row, len(raw))
	for i, r := range raw {
		out[i] = Row{Timestamp: timeutil.MustTimestamp(r.Ts), Value: r.V}
	}
	return out, nil
}

func (e *PostgresEngine) upsertMetadataRow(ctx context.Context, md *metadata.Metadata) error {
	predHashes, err := predecessorHashesJSON(md)
	if err != nil {
		return err
	}
	paramsJ, err := paramsJSON(md.Params)
	if err != nil {
		return err
	}
	_, err = e.db.Exec(ctx, `
		INSERT INTO tsgraph_metadata (hash, name, version, static, time_level, params, predecessor_hashes, engine_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (hash) DO UPDATE SET updated_at = NOW()
	`, hashHex(md.Hash()), md.Name, md.Version, md.Static, md.TimeLevel, paramsJ, predHashes, md.EngineID)
	return err
}

func (e *PostgresEngine) Exists(ctx context.Context, md *metadata.Metadata) (bool, error) {
	var count int
	err := e.db.QueryRow(ctx, `SELECT count(*) FROM tsgraph_metadata WHERE hash = $1 AND (row_count > 0 OR blob IS NOT NULL)`, hashHex(md.Hash())).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type metadataRow struct {
	name, version, timeLevel, engineID string
	static                             bool
	params                             []byte
	predHashes                         []byte
}

func (e *PostgresEngine) fetchMetadataRow(ctx context.Context, h metadata.Hash) (*metadataRow, error) {
	var row metadataRow
	err := e.db.QueryRow(ctx, `
		SELECT name, version, static, time_level, params, predecessor_hashes, engine_id
		FROM tsgraph_metadata WHERE hash = $1
	`, hashHex(h)).Scan(&row.name, &row.version, &row.static, &row.timeLevel, &row.params, &row.predHashes, &row.engineID)
	if errIsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetStub reconstructs a Stub purely from persisted identity fields; its
// predecessors are metadata.HashRef placeholders, never re-fetched, so the
// call never transitively materialises the ancestor graph.
func (e *PostgresEngine) GetStub(ctx context.Context, md *metadata.Metadata) (*metadata.Stub, error) {
	h := md.Hash()
	row, err := e.fetchMetadataRow(ctx, h)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return metadata.StubOf(md), nil
	}
	var predHashesHex []string
	if err := json.Unmarshal(row.predHashes, &predHashesHex); err != nil {
		return nil, fmt.Errorf("engine: decode predecessor hashes: %w", err)
	}
	// Predecessor edges are rebuilt from the persisted hash list alone, as
	// metadata.HashRef placeholders: the key names come from md (the caller
	// already holds the full metadata it's asking about), but the predecessor
	// content is never re-fetched.
	edges := make([]metadata.PredecessorEdge, len(md.Predecessors))
	for i, pe := range md.Predecessors {
		h := pe.Node.Hash()
		if i < len(predHashesHex) {
			h = hexHashRef(predHashesHex[i]).H
		}
		edges[i] = metadata.PredecessorEdge{Key: pe.Key, Node: metadata.HashRef{H: h}}
	}
	return &metadata.Stub{
		Name:         row.name,
		Version:      row.version,
		Static:       row.static,
		TimeLevel:    row.timeLevel,
		Params:       md.Params,
		Predecessors: edges,
		EngineID:     row.engineID,
	}, nil
}

func (e *PostgresEngine) Range(ctx context.Context, md *metadata.Metadata) (timeutil.Extent, bool, error) {
	var first, last *time.Time
	err := e.db.QueryRow(ctx, `SELECT range_first, range_last FROM tsgraph_metadata WHERE hash = $1`, hashHex(md.Hash())).Scan(&first, &last)
	if errIsNoRows(err) {
		return timeutil.Extent{}, false, nil
	}
	if err != nil {
		return timeutil.Extent{}, false, err
	}
	if first == nil || last == nil {
		return timeutil.Extent{}, false, nil
	}
	return timeutil.Extent{First: timeutil.MustTimestamp(*first), Last: timeutil.MustTimestamp(*last)}, true, nil
}

func (e *PostgresEngine) Read(ctx context.Context, md *metadata.Metadata, r *timeutil.TimeRange) (Payload, error) {
	exists, err := e.Exists(ctx, md)
	if err != nil {
		return Payload{}, err
	}
	if !exists {
		return Payload{}, NotFound(md)
	}

	if md.Static {
		var blob []byte
		err := e.db.QueryRow(ctx, `SELECT blob FROM tsgraph_metadata WHERE hash = $1`, hashHex(md.Hash())).Scan(&blob)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Blob: blob}, nil
	}

	extent, ok, err := e.Range(ctx, md)
	if err != nil {
		return Payload{}, err
	}
	if !ok {
		return Payload{}, NotFound(md)
	}
	fetchRange := extent.AsRange()
	if r != nil {
		fetchRange = *r
	}

	buckets := bucketsForRange(fetchRange)
	rows, err := e.readChunks(ctx, md.Hash(), buckets)
	if err != nil {
		return Payload{}, err
	}
	p := Payload{Rows: rows}
	if r != nil {
		p = p.Slice(*r)
	}
	return p, nil
}

func (e *PostgresEngine) readChunks(ctx context.Context, h metadata.Hash, buckets []time.Time) ([]Row, error) {
	if len(buckets) == 0 {
		return nil, nil
	}
	rowsRes, err := e.db.Query(ctx, `
		SELECT rows FROM tsgraph_payload_chunks
		WHERE dataset_hash = $1 AND chunk_start = ANY($2)
		ORDER BY chunk_start ASC
	`, hashHex(h), buckets)
	if err != nil {
		return nil, err
	}
	defer rowsRes.Close()

	var out []Row
	for rowsRes.Next() {
		var data []byte
		if err := rowsRes.Scan(&data); err != nil {
			return nil, err
		}
		decoded, err := rowsFromJSON(data)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}
	return out, rowsRes.Err()
}

// writeChunks upserts p's rows into their bucket chunks, merging with
// whatever each bucket already holds and existing-wins deduplicating by
// timestamp when combine is true (Merge semantics); when combine is false,
// the incoming rows simply extend the chunk (Append semantics, already
// validated monotonic by the caller).
func (e *PostgresEngine) writeChunks(ctx context.Context, tx pgx.Tx, h metadata.Hash, rows []Row, combine bool) error {
	byBucket := make(map[time.Time][]Row)
	for _, row := range rows {
		start, _ := chunkBucket(row.Timestamp.Time())
		byBucket[start] = append(byBucket[start], row)
	}
	for start, newRows := range byBucket {
		_, end := chunkBucket(start)
		var existing []byte
		err := tx.QueryRow(ctx, `SELECT rows FROM tsgraph_payload_chunks WHERE dataset_hash = $1 AND chunk_start = $2`, hashHex(h), start).Scan(&existing)
		var merged []Row
		if err == nil {
			decoded, decErr := rowsFromJSON(existing)
			if decErr != nil {
				return decErr
			}
			merged = combineRows(decoded, newRows, combine)
		} else if errIsNoRows(err) {
			merged = newRows
		} else {
			return err
		}
		data, err := rowsToJSON(merged)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tsgraph_payload_chunks (dataset_hash, chunk_start, chunk_end, rows)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (dataset_hash, chunk_start) DO UPDATE SET rows = EXCLUDED.rows
		`, hashHex(h), start, end, data)
		if err != nil {
			return err
		}
	}
	return nil
}

// combineRows merges existing and incoming rows sorted by timestamp.
// combine=true is Merge (existing wins on a timestamp collision); combine=false
// is Append (callers have already guaranteed no collision is possible).
func combineRows(existing, incoming []Row, combine bool) []Row {
	byTs := make(map[int64]Row, len(existing)+len(incoming))
	order := make([]int64, 0, len(existing)+len(incoming))
	add := func(r Row, overwrite bool) {
		key := r.Timestamp.Time().UnixNano()
		if _, ok := byTs[key]; !ok {
			order = append(order, key)
			byTs[key] = r
		} else if overwrite {
			byTs[key] = r
		}
	}
	for _, r := range existing {
		add(r, true)
	}
	for _, r := range incoming {
		add(r, !combine)
	}
	out := make([]Row, 0, len(order))
	sortInt64(order)
	for _, k := range order {
		out = append(out, byTs[k])
	}
	return out
}

func sortInt64(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (e *PostgresEngine) updateRangeAndCount(ctx context.Context, tx pgx.Tx, h metadata.Hash, extent timeutil.Extent, rowCount int) error {
	_, err := tx.Exec(ctx, `
		UPDATE tsgraph_metadata SET range_first = $2, range_last = $3, row_count = $4, updated_at = NOW()
		WHERE hash = $1
	`, hashHex(h), extent.First.Time(), extent.Last.Time(), rowCount)
	return err
}

func (e *PostgresEngine) Append(ctx context.Context, md *metadata.Metadata, p Payload) error {
	if len(p.Rows) == 0 {
		return nil
	}
	if err := requireIncreasing(p.Rows); err != nil {
		return err
	}
	if err := e.upsertMetadataRow(ctx, md); err != nil {
		return err
	}

	existingExtent, ok, err := e.Range(ctx, md)
	if err != nil {
		return err
	}
	if ok && !p.Rows[0].Timestamp.After(existingExtent.Last) {
		return AppendOverlap(p.Rows[0].Timestamp, existingExtent.Last)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := e.writeChunks(ctx, tx, md.Hash(), p.Rows, false); err != nil {
		return err
	}

	newExtent := existingExtent
	if !ok {
		newExtent = timeutil.Extent{First: p.Rows[0].Timestamp, Last: p.Rows[len(p.Rows)-1].Timestamp}
	} else {
		newExtent.Last = p.Rows[len(p.Rows)-1].Timestamp
	}
	var rowCount int
	if err := tx.QueryRow(ctx, `SELECT row_count FROM tsgraph_metadata WHERE hash = $1`, hashHex(md.Hash())).Scan(&rowCount); err != nil {
		return err
	}
	rowCount += len(p.Rows)
	if err := e.updateRangeAndCount(ctx, tx, md.Hash(), newExtent, rowCount); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (e *PostgresEngine) Merge(ctx context.Context, md *metadata.Metadata, p Payload) error {
	if err := e.upsertMetadataRow(ctx, md); err != nil {
		return err
	}
	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := e.writeChunks(ctx, tx, md.Hash(), p.Rows, true); err != nil {
		return err
	}

	extent, ok, err := e.computeStoredExtent(ctx, tx, md.Hash())
	if err != nil {
		return err
	}
	var rowCount int
	if ok {
		rowCount, err = e.countStoredRows(ctx, tx, md.Hash())
		if err != nil {
			return err
		}
		if err := e.updateRangeAndCount(ctx, tx, md.Hash(), extent, rowCount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (e *PostgresEngine) computeStoredExtent(ctx context.Context, tx pgx.Tx, h metadata.Hash) (timeutil.Extent, bool, error) {
	var first, last *time.Time
	err := tx.QueryRow(ctx, `SELECT min(chunk_start), max(chunk_end) FROM tsgraph_payload_chunks WHERE dataset_hash = $1`, hashHex(h)).Scan(&first, &last)
	if err != nil || first == nil || last == nil {
		return timeutil.Extent{}, false, err
	}
	// chunk_start/chunk_end only bound the buckets; the true extent is
	// derived from the actual row timestamps within them.
	rows, err := e.readChunksTx(ctx, tx, h)
	if err != nil {
		return timeutil.Extent{}, false, err
	}
	if len(rows) == 0 {
		return timeutil.Extent{}, false, nil
	}
	return timeutil.Extent{First: rows[0].Timestamp, Last: rows[len(rows)-1].Timestamp}, true, nil
}

func (e *PostgresEngine) readChunksTx(ctx context.Context, tx pgx.Tx, h metadata.Hash) ([]Row, error) {
	rowsRes, err := tx.Query(ctx, `SELECT rows FROM tsgraph_payload_chunks WHERE dataset_hash = $1 ORDER BY chunk_start ASC`, hashHex(h))
	if err != nil {
		return nil, err
	}
	defer rowsRes.Close()
	var out []Row
	for rowsRes.Next() {
		var data []byte
		if err := rowsRes.Scan(&data); err != nil {
			return nil, err
		}
		decoded, err := rowsFromJSON(data)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}
	return out, rowsRes.Err()
}

func (e *PostgresEngine) countStoredRows(ctx context.Context, tx pgx.Tx, h metadata.Hash) (int, error) {
	rows, err := e.readChunksTx(ctx, tx, h)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *PostgresEngine) Replace(ctx context.Context, md *metadata.Metadata, p Payload) error {
	if err := requireIncreasing(p.Rows); err != nil {
		return err
	}
	if err := e.upsertMetadataRow(ctx, md); err != nil {
		return err
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tsgraph_payload_chunks WHERE dataset_hash = $1`, hashHex(md.Hash())); err != nil {
		return err
	}
	if md.Static {
		if _, err := tx.Exec(ctx, `UPDATE tsgraph_metadata SET blob = $2, row_count = 1, updated_at = NOW() WHERE hash = $1`, hashHex(md.Hash()), p.Blob); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	if len(p.Rows) > 0 {
		if err := e.writeChunks(ctx, tx, md.Hash(), p.Rows, false); err != nil {
			return err
		}
		extent := timeutil.Extent{First: p.Rows[0].Timestamp, Last: p.Rows[len(p.Rows)-1].Timestamp}
		if err := e.updateRangeAndCount(ctx, tx, md.Hash(), extent, len(p.Rows)); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE tsgraph_metadata SET range_first = NULL, range_last = NULL, row_count = 0, updated_at = NOW() WHERE hash = $1`, hashHex(md.Hash())); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (e *PostgresEngine) Delete(ctx context.Context, md *metadata.Metadata, r *timeutil.TimeRange) error {
	if r == nil {
		_, err := e.db.Exec(ctx, `DELETE FROM tsgraph_metadata WHERE hash = $1`, hashHex(md.Hash()))
		return err
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := e.readChunksTx(ctx, tx, md.Hash())
	if err != nil {
		return err
	}
	var kept []Row
	for _, row := range rows {
		if !r.Contains(row.Timestamp) {
			kept = append(kept, row)
		}
	}
	if _, err := tx.Exec(ctx, `DELETE FROM tsgraph_payload_chunks WHERE dataset_hash = $1`, hashHex(md.Hash())); err != nil {
		return err
	}
	if len(kept) > 0 {
		if err := e.writeChunks(ctx, tx, md.Hash(), kept, false); err != nil {
			return err
		}
		extent := timeutil.Extent{First: kept[0].Timestamp, Last: kept[len(kept)-1].Timestamp}
		if err := e.updateRangeAndCount(ctx, tx, md.Hash(), extent, len(kept)); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE tsgraph_metadata SET range_first = NULL, range_last = NULL, row_count = 0, updated_at = NOW() WHERE hash = $1`, hashHex(md.Hash())); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (e *PostgresEngine) Query(ctx context.Context, name string, params map[string]interface{}) ([]*metadata.Stub, error) {
	query := `SELECT hash, name, version, static, time_level, params, predecessor_hashes, engine_id FROM tsgraph_metadata WHERE (row_count > 0 OR blob IS NOT NULL)`
	args := []interface{}{}
	if name != "" {
		args = append(args, name)
		query += fmt.Sprintf(" AND name = $%d", len(args))
	}
	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*metadata.Stub
	for rows.Next() {
		var hashHexStr, name, version, timeLevel, engineID string
		var static bool
		var paramsRaw, predRaw []byte
		if err := rows.Scan(&hashHexStr, &name, &version, &static, &timeLevel, &paramsRaw, &predRaw, &engineID); err != nil {
			return nil, err
		}
		var predHashesHex []string
		if err := json.Unmarshal(predRaw, &predHashesHex); err != nil {
			return nil, err
		}
		edges := make([]metadata.PredecessorEdge, len(predHashesHex))
		for i, hx := range predHashesHex {
			edges[i] = metadata.PredecessorEdge{Key: fmt.Sprintf("pred%d", i), Node: hexHashRef(hx)}
		}
		stub := &metadata.Stub{Name: name, Version: version, Static: static, TimeLevel: timeLevel, Predecessors: edges, EngineID: engineID}
		if !paramsSubsetMatch(paramsRaw, params) {
			continue
		}
		out = append(out, stub)
	}
	return out, rows.Err()
}

func hexHashRef(hexStr string) metadata.HashRef {
	var h metadata.Hash
	b, err := decodeHex(hexStr)
	if err == nil && len(b) == len(h) {
		copy(h[:], b)
	}
	return metadata.HashRef{H: h}
}

func decodeHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("engine: odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	_, err := fmt.Sscanf(s, "%x", &out)
	return out, err
}

func paramsSubsetMatch(storedJSON []byte, filter map[string]interface{}) bool {
	if len(filter) == 0 {
		return true
	}
	var stored map[string]interface{}
	if err := json.Unmarshal(storedJSON, &stored); err != nil {
		return false
	}
	for k, raw := range filter {
		got, ok := stored[k]
		if !ok {
			return false
		}
		want, err := param.Normalise(raw)
		if err != nil {
			return false
		}
		wantJSON, err1 := json.Marshal(toJSONValue(want))
		gotJSON, err2 := json.Marshal(got)
		if err1 != nil || err2 != nil || string(wantJSON) != string(gotJSON) {
			return false
		}
	}
	return true
}
