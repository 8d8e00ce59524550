package znsite

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zeronode/pkg/zncodec"
	"zeronode/pkg/zncontent"
	"zeronode/pkg/zncrypto"
	"zeronode/pkg/zntracker"
	"zeronode/pkg/znstore"
)

// sha512Truncated matches zncontent.FileEntry's digest convention: a
// SHA-512 hash truncated to its first 32 bytes, hex-encoded.
func sha512Truncated(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:32])
}

// State is one of a site's lifecycle states:
// New → Discovering → Fetching → Verifying → Serving ⇄ Updating → Serving,
// with the terminal Deleted and the error sub-state Degraded.
type State int

const (
	StateNew State = iota
	StateDiscovering
	StateFetching
	StateVerifying
	StateServing
	StateUpdating
	StateDegraded
	StatePaused
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDiscovering:
		return "discovering"
	case StateFetching:
		return "fetching"
	case StateVerifying:
		return "verifying"
	case StateServing:
		return "serving"
	case StateUpdating:
		return "updating"
	case StateDegraded:
		return "degraded"
	case StatePaused:
		return "paused"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// defaultConcurrentDownloads bounds how many files a single site downloads
// at once ("a semaphore per site controls the number of
// simultaneous in-flight file downloads").
const defaultConcurrentDownloads = 8

// maxPeerAttemptsPerFile bounds how many distinct peers need_file tries
// before giving up and surfacing FileDownloadFailed.
const maxPeerAttemptsPerFile = 4

// Site is the central entity for one hosted or mirrored site: the
// manifest, the swarm of known peers, and the lifecycle state machine.
// Adapted in shape from core/content_node_impl.go's single owning struct
// with one method per network operation, generalized from content-address
// retrieval to the full ZeroNet site lifecycle.
type Site struct {
	Address zncrypto.Address
	dataDir string

	mu       sync.RWMutex
	state    State
	manifest *zncontent.Manifest
	peers    map[string]*Peer

	badFiles *BadFiles
	cache    *znstore.FileCache
	needFile *coalescer[bool]
	sem      chan struct{}

	allowedSigners map[string]bool
	permissions    map[string]bool

	pausedFrom State
}

// NewSite creates a Site rooted at dataDir/<address>, with an empty swarm
// and no manifest loaded (state New).
func NewSite(address zncrypto.Address, dataDir string, cache *znstore.FileCache) *Site {
	return &Site{
		Address:        address,
		dataDir:        filepath.Join(dataDir, address.String()),
		state:          StateNew,
		peers:          make(map[string]*Peer),
		badFiles:       NewBadFiles(),
		cache:          cache,
		needFile:       newCoalescer[bool](),
		sem:            make(chan struct{}, defaultConcurrentDownloads),
		allowedSigners: map[string]bool{address.String(): true},
		permissions:    make(map[string]bool),
	}
}

// AllowSigner adds addr (typically a cert-delegated auth address) to the
// set of signers VerifySignatures accepts.
func (s *Site) AllowSigner(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedSigners[addr] = true
}

// AllowPermission grants perm (e.g. "Merger:example", "Notifications") to
// this site, mirroring sitePermissionAdd.
func (s *Site) AllowPermission(perm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[perm] = true
}

// RevokePermission removes perm, mirroring sitePermissionRemove.
func (s *Site) RevokePermission(perm string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.permissions, perm)
}

// Permissions returns the site's granted permission names, in no
// particular order.
func (s *Site) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.permissions))
	for p := range s.permissions {
		out = append(out, p)
	}
	return out
}

// Pause moves a non-terminal site into StatePaused, remembering the state
// it was paused from so Resume can restore it. Pausing an already-paused
// or deleted site is a no-op.
func (s *Site) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused || s.state == StateDeleted {
		return
	}
	s.pausedFrom = s.state
	s.state = StatePaused
}

// Resume restores the state Pause saved. Resuming a site that isn't paused
// is a no-op.
func (s *Site) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.state = s.pausedFrom
}

// State returns the site's current lifecycle state.
func (s *Site) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Site) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Manifest returns the site's current, atomically-replaced manifest
// ("manifest replacement is atomic" ordering guarantee: a
// caller sees either the previous or the new one, never a partial merge,
// because replacement happens under the same mutex as reads).
func (s *Site) Manifest() *zncontent.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

func (s *Site) replaceManifest(m *zncontent.Manifest) {
	s.mu.Lock()
	s.manifest = m
	s.mu.Unlock()
}

// AddPeer registers addr in the swarm, returning its Peer entry (existing
// or newly created).
func (s *Site) AddPeer(addr zncodec.PeerAddress) *Peer {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[key]; ok {
		return p
	}
	p := NewPeer(addr)
	s.peers[key] = p
	return p
}

// RemovePeer evicts addr from the swarm, e.g. when connected_limit is
// exceeded and addr is the lowest-reputation idle peer.
func (s *Site) RemovePeer(addr zncodec.PeerAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, addr.String())
}

// Peers returns every known peer, in no particular order.
func (s *Site) Peers() []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// BadFiles exposes the site's bad-files tracker.
func (s *Site) BadFiles() *BadFiles { return s.badFiles }

// pickPeer returns the best candidate peer (reputation descending,
// earliest-last-response tie-break) that is not in exclude and has a live
// client attached, or ok=false if none qualify.
func (s *Site) pickPeer(exclude map[string]bool) (*Peer, bool) {
	candidates := s.Peers()
	ordered := peersByReputation(candidates)
	for _, p := range ordered {
		if exclude[p.Address.String()] {
			continue
		}
		if p.Client() != nil {
			return p, true
		}
	}
	return nil, false
}

// Create implements create(private_key): a fresh manifest
// with signs_required=1, a signed "1:{address}" signers_sign, and a
// welcome file, persisted to disk.
func (s *Site) Create(priv *zncrypto.PrivateKey) error {
	addr, err := priv.Address()
	if err != nil {
		return fmt.Errorf("znsite: create: %w", err)
	}
	if addr.String() != s.Address.String() {
		return fmt.Errorf("znsite: create: private key address %s does not match site %s", addr, s.Address)
	}

	m := zncontent.NewManifest(s.Address)
	m.SetModified(float64(time.Now().Unix()))

	welcome := []byte("Welcome to ZeroNet, if you see this page the site was created successfully!\n")
	if err := s.writeFile("welcome.html", welcome); err != nil {
		return fmt.Errorf("znsite: create: %w", err)
	}
	m.SetFile("welcome.html", zncontent.FileEntry{
		Size:   int64(len(welcome)),
		Sha512: sha512Truncated(welcome),
	})

	if err := m.Sign(priv); err != nil {
		return fmt.Errorf("znsite: create: %w", err)
	}
	if err := m.SignRoot(priv); err != nil {
		return fmt.Errorf("znsite: create: %w", err)
	}

	if err := s.persistManifest(m); err != nil {
		return fmt.Errorf("znsite: create: %w", err)
	}
	s.replaceManifest(m)
	s.setState(StateServing)
	return nil
}

// SignContent implements sign_content(private_key): bump
// modified, re-sign, persist. The new signature replaces any earlier one
// by the same key; signatures by other keys are left in signs as they are.
func (s *Site) SignContent(priv *zncrypto.PrivateKey) error {
	m := s.Manifest()
	if m == nil {
		return fmt.Errorf("znsite: sign_content: no manifest loaded")
	}
	m.SetModified(float64(time.Now().Unix()))
	if err := m.Sign(priv); err != nil {
		return fmt.Errorf("znsite: sign_content: %w", err)
	}
	if err := m.SignRoot(priv); err != nil {
		return fmt.Errorf("znsite: sign_content: %w", err)
	}
	if err := s.persistManifest(m); err != nil {
		return fmt.Errorf("znsite: sign_content: %w", err)
	}
	s.replaceManifest(m)
	return nil
}

// InitDownload implements init_download(): ensure the data
// directory exists; fetch content.json if missing; verify it; fetch every
// required file (bounded concurrency), recursing into includes.
func (s *Site) InitDownload(ctx context.Context) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("znsite: init_download: mkdir: %w", err)
	}
	s.setState(StateDiscovering)

	m := s.Manifest()
	if m == nil {
		fetched, err := s.fetchManifest(ctx, "content.json")
		if err != nil {
			s.setState(StateDegraded)
			return fmt.Errorf("znsite: init_download: fetch manifest: %w", err)
		}
		s.setState(StateVerifying)
		valid, err := fetched.VerifySignatures(s.allowedSignersSnapshot())
		if err != nil {
			s.setState(StateDegraded)
			return fmt.Errorf("znsite: init_download: verify manifest: %w", err)
		}
		if len(valid) < fetched.SignsRequired() {
			s.setState(StateDegraded)
			return fmt.Errorf("znsite: init_download: verify manifest: %d valid signature(s), %d required", len(valid), fetched.SignsRequired())
		}
		if err := zncontent.VerifyAgainstPrevious(fetched, nil); err != nil {
			s.setState(StateDegraded)
			return fmt.Errorf("znsite: init_download: %w", err)
		}
		if err := s.persistManifest(fetched); err != nil {
			s.setState(StateDegraded)
			return fmt.Errorf("znsite: init_download: persist manifest: %w", err)
		}
		s.replaceManifest(fetched)
		m = fetched
	}

	s.setState(StateFetching)
	if err := s.downloadManifestFiles(ctx, m); err != nil {
		s.setState(StateDegraded)
		return err
	}

	if s.badFiles.Len() == 0 {
		s.setState(StateServing)
	} else {
		s.setState(StateDegraded)
	}
	return nil
}

// downloadManifestFiles fetches every required file in m, then recurses
// into each included manifest ("include nested includes
// manifests recursively").
func (s *Site) downloadManifestFiles(ctx context.Context, m *zncontent.Manifest) error {
	files := m.Files()
	var wg sync.WaitGroup
	for innerPath := range files {
		innerPath := innerPath
		wg.Add(1)
		s.sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			if _, err := s.NeedFile(ctx, innerPath); err != nil {
				s.badFiles.Add(innerPath)
			}
		}()
	}
	wg.Wait()

	for _, includePath := range m.Includes() {
		nested, err := s.fetchManifest(ctx, includePath)
		if err != nil {
			s.badFiles.Add(includePath)
			continue
		}
		if err := s.downloadManifestFiles(ctx, nested); err != nil {
			return err
		}
	}
	return nil
}

// fetchManifest downloads and parses the manifest at innerPath from the
// best available peer.
func (s *Site) fetchManifest(ctx context.Context, innerPath string) (*zncontent.Manifest, error) {
	peer, ok := s.pickPeer(nil)
	if !ok {
		return nil, fmt.Errorf("znsite: fetch manifest %s: no peers available", innerPath)
	}
	res, err := peer.Client().GetFile(ctx, s.Address.String(), innerPath, 0, 0)
	if err != nil {
		peer.RecordFailure()
		return nil, fmt.Errorf("znsite: fetch manifest %s: %w", innerPath, err)
	}
	peer.RecordSuccess()
	m, err := zncontent.ParseManifest(res.Body)
	if err != nil {
		return nil, fmt.Errorf("znsite: parse manifest %s: %w", innerPath, err)
	}
	return m, nil
}

// NeedFile implements need_file(inner_path): idempotent,
// coalesced ensure-present-and-valid. Concurrent callers for the same
// inner_path share one download (at-most-one-in-flight
// property).
func (s *Site) NeedFile(ctx context.Context, innerPath string) (bool, error) {
	if s.verifyOnDisk(innerPath) == nil {
		return true, nil
	}
	return s.needFile.Do(ctx, innerPath, func(dctx context.Context) (bool, error) {
		return s.downloadFile(dctx, innerPath)
	})
}

// GetFile ensures innerPath is present and verified, then returns its
// contents, for gateway handlers (fileGet/fileNeed) that need the bytes
// rather than just a presence boolean.
func (s *Site) GetFile(ctx context.Context, innerPath string) ([]byte, error) {
	if _, err := s.NeedFile(ctx, innerPath); err != nil {
		return nil, err
	}
	return s.readFile(innerPath)
}

func (s *Site) downloadFile(ctx context.Context, innerPath string) (bool, error) {
	m := s.Manifest()
	if m == nil {
		return false, fmt.Errorf("znsite: need_file %s: no manifest loaded", innerPath)
	}
	entry, ok := m.Files()[innerPath]
	if !ok {
		entry, ok = m.FilesOptional()[innerPath]
	}
	if !ok {
		return false, fmt.Errorf("znsite: need_file %s: not present in manifest", innerPath)
	}

	tried := make(map[string]bool)
	var lastErr error
	for attempt := 0; attempt < maxPeerAttemptsPerFile; attempt++ {
		peer, ok := s.pickPeer(tried)
		if !ok {
			break
		}
		tried[peer.Address.String()] = true

		data, err := fetchFile(ctx, peer.Client(), s.Address.String(), innerPath, entry.Size)
		if err != nil {
			peer.RecordFailure()
			lastErr = err
			continue
		}
		if err := zncontent.VerifyFile(data, entry); err != nil {
			peer.RecordFailure()
			s.badFiles.Add(innerPath)
			lastErr = err
			continue
		}

		if err := s.writeFile(innerPath, data); err != nil {
			return false, fmt.Errorf("znsite: need_file %s: %w", innerPath, err)
		}
		if s.cache != nil {
			_ = s.cache.Put(s.Address.String()+"/"+innerPath, data)
		}
		peer.RecordSuccess()
		s.badFiles.Remove(innerPath)
		return true, nil
	}

	s.badFiles.Add(innerPath)
	if lastErr == nil {
		lastErr = fmt.Errorf("znsite: need_file %s: no peers available", innerPath)
	}
	return false, fmt.Errorf("znsite: FileDownloadFailed %s: %w", innerPath, lastErr)
}

// FetchChanges implements fetch_changes(since): ask peers
// (best-reputation first, falling through on failure) for inner_path→mtime
// changes since the given unix timestamp.
func (s *Site) FetchChanges(ctx context.Context, since int64) (map[string]int64, error) {
	tried := make(map[string]bool)
	var lastErr error
	for attempt := 0; attempt < maxPeerAttemptsPerFile; attempt++ {
		peer, ok := s.pickPeer(tried)
		if !ok {
			break
		}
		tried[peer.Address.String()] = true
		changed, err := peer.Client().ListModified(ctx, s.Address.String(), since)
		if err != nil {
			peer.RecordFailure()
			lastErr = err
			continue
		}
		peer.RecordSuccess()
		return changed, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no peers available")
	}
	return nil, fmt.Errorf("znsite: fetch_changes: %w", lastErr)
}

// FetchPeers implements fetch_peers(): PEX the best
// available peer for more swarm members and register them.
func (s *Site) FetchPeers(ctx context.Context) ([]zncodec.PeerAddress, error) {
	peer, ok := s.pickPeer(nil)
	if !ok {
		return nil, fmt.Errorf("znsite: fetch_peers: no peers available")
	}

	known := make([][]byte, 0, len(s.Peers()))
	for _, p := range s.Peers() {
		if packed, err := zncodec.EncodeCompactIPv4Peers([]zncodec.PeerAddress{p.Address}); err == nil {
			known = append(known, packed)
		}
	}

	found, err := peer.Client().Pex(ctx, s.Address.String(), known, 30)
	if err != nil {
		peer.RecordFailure()
		return nil, fmt.Errorf("znsite: fetch_peers: %w", err)
	}
	peer.RecordSuccess()
	for _, addr := range found {
		s.AddPeer(addr)
	}
	return found, nil
}

// AnnounceToTracker queries a single tracker for this site's peer swarm,
// registering any peers found.
func (s *Site) AnnounceToTracker(resolver *zntracker.Resolver, trackerURL string, peerID [20]byte, port uint16) ([]zncodec.PeerAddress, error) {
	infoHash := zncrypto.InfoHash(s.Address)
	peers, err := resolver.Announce(trackerURL, infoHash, peerID, port)
	if err != nil {
		return nil, err
	}
	for _, addr := range peers {
		s.AddPeer(addr)
	}
	return peers, nil
}

// Update implements update(inner_path, diffs): broadcast
// the new manifest body to every connected peer with a live client. diffs
// is not sent; peers receive only the full manifest body.
func (s *Site) Update(ctx context.Context, innerPath string, diffs []byte) error {
	s.setState(StateUpdating)
	defer s.setState(StateServing)

	m := s.Manifest()
	if m == nil {
		return fmt.Errorf("znsite: update: no manifest loaded")
	}
	body, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("znsite: update: %w", err)
	}

	var errs []error
	for _, p := range s.Peers() {
		c := p.Client()
		if c == nil {
			continue
		}
		if err := c.Update(ctx, s.Address.String(), innerPath, body, int64(m.Modified())); err != nil {
			p.RecordFailure()
			errs = append(errs, err)
			continue
		}
		p.RecordSuccess()
	}
	if len(errs) > 0 {
		return fmt.Errorf("znsite: update: %d peer(s) failed: %v", len(errs), errs[0])
	}
	_ = diffs // per-file text diffs are advisory; full manifest body is authoritative
	return nil
}

// VerifyFiles implements verify_files(content_only): verify
// the manifest signature and, unless contentOnly, every file's digest,
// returning the inner_paths that failed.
func (s *Site) VerifyFiles(contentOnly bool) ([]string, error) {
	m := s.Manifest()
	if m == nil {
		return nil, fmt.Errorf("znsite: verify_files: no manifest loaded")
	}

	var failures []string
	valid, err := m.VerifySignatures(s.allowedSignersSnapshot())
	if err != nil {
		return nil, fmt.Errorf("znsite: verify_files: %w", err)
	}
	if len(valid) < m.SignsRequired() {
		failures = append(failures, "content.json")
	}
	if contentOnly {
		return failures, nil
	}

	for innerPath := range m.Files() {
		if err := s.verifyOnDisk(innerPath); err != nil {
			failures = append(failures, innerPath)
			s.badFiles.Add(innerPath)
		}
	}
	return failures, nil
}

// MismatchEntry is one (inner_path, declared file entry) pair whose
// on-disk content does not match the manifest.
type MismatchEntry struct {
	InnerPath string
	Declared  zncontent.FileEntry
}

// CheckSiteIntegrity implements check_site_integrity():
// compute per-file digests and compare against the manifest.
func (s *Site) CheckSiteIntegrity() ([]MismatchEntry, error) {
	m := s.Manifest()
	if m == nil {
		return nil, fmt.Errorf("znsite: check_site_integrity: no manifest loaded")
	}
	var mismatches []MismatchEntry
	for innerPath, entry := range m.Files() {
		if err := s.verifyOnDisk(innerPath); err != nil {
			mismatches = append(mismatches, MismatchEntry{InnerPath: innerPath, Declared: entry})
		}
	}
	return mismatches, nil
}

func (s *Site) allowedSignersSnapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.allowedSigners))
	for k, v := range s.allowedSigners {
		out[k] = v
	}
	return out
}

func (s *Site) verifyOnDisk(innerPath string) error {
	m := s.Manifest()
	if m == nil {
		return fmt.Errorf("znsite: no manifest loaded")
	}
	entry, ok := m.Files()[innerPath]
	if !ok {
		entry, ok = m.FilesOptional()[innerPath]
	}
	if !ok {
		return fmt.Errorf("znsite: %s not present in manifest", innerPath)
	}
	data, err := s.readFile(innerPath)
	if err != nil {
		return err
	}
	return zncontent.VerifyFile(data, entry)
}

func (s *Site) filePath(innerPath string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(innerPath))
}

func (s *Site) readFile(innerPath string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(s.Address.String() + "/" + innerPath); ok {
			return data, nil
		}
	}
	return os.ReadFile(s.filePath(innerPath))
}

func (s *Site) writeFile(innerPath string, data []byte) error {
	path := s.filePath(innerPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func (s *Site) persistManifest(m *zncontent.Manifest) error {
	raw, err := m.Marshal()
	if err != nil {
		return err
	}
	return s.writeFile("content.json", raw)
}

// LoadManifest reads content.json from disk into memory, for reattaching
// to a site a previous process already downloaded or created. It does not
// re-verify signatures; callers that need that should follow up with
// VerifyFiles or CheckSiteIntegrity.
func (s *Site) LoadManifest() error {
	raw, err := s.readFile("content.json")
	if err != nil {
		return fmt.Errorf("znsite: load manifest: %w", err)
	}
	m, err := zncontent.ParseManifest(raw)
	if err != nil {
		return fmt.Errorf("znsite: load manifest: %w", err)
	}
	s.replaceManifest(m)
	s.setState(StateServing)
	return nil
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, matching znstore.DocumentStore's crash-safety idiom
// for the arbitrary (non-JSON) site files content.json sits alongside.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
