// Package version handles the on-disk VERSION file: the plain-text
// key/value identity record written once at storage-root
// initialization and consulted on every subsequent startup to detect a
// crash mid-upgrade.
package version

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const fileName = "VERSION"

// NodeType identifies which daemon owns a storage root.
type NodeType string

const (
	NodeTypeSCM      NodeType = "SCM"
	NodeTypeDatanode NodeType = "DATANODE"
)

// Info is the parsed content of a VERSION file.
type Info struct {
	NodeType                 NodeType
	ClusterID                string
	SCMID                    string
	CreationTime             int64
	LayoutVersion            int
	UpgradingToLayoutVersion int // 0 means absent
}

// keys mirrors the VERSION file field names verbatim, so the
// on-disk format is stable across implementations sharing a cluster.
const (
	keyNodeType                 = "nodeType"
	keyClusterID                = "clusterID"
	keySCMID                    = "scmID"
	keyCTime                    = "cTime"
	keyLayoutVersion            = "layoutVersion"
	keyUpgradingToLayoutVersion = "upgradingToLayoutVersion"
)

// NewClusterID mints a CID-<uuid-v4> cluster identifier.
func NewClusterID() string {
	return "CID-" + uuid.New().String()
}

// NewID mints a random 128-bit id suitable for scm-id or node-id.
func NewID() string {
	return uuid.New().String()
}

// path returns the VERSION file path for a storage root.
func path(storageRoot string) string {
	return filepath.Join(storageRoot, fileName)
}

// Exists reports whether a storage root has already been initialized.
func Exists(storageRoot string) bool {
	_, err := os.Stat(path(storageRoot))
	return err == nil
}

// Load reads and parses the VERSION file. A present
// upgradingToLayoutVersion aborts with a recovery error per :
// "presence... indicates a crash during upgrade and aborts startup
// with a recovery message."
func Load(storageRoot string) (*Info, error) {
	f, err := os.Open(path(storageRoot))
	if err != nil {
		return nil, fmt.Errorf("failed to open VERSION file: %w", err)
	}
	defer f.Close()

	props := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read VERSION file: %w", err)
	}

	info := &Info{
		NodeType:  NodeType(props[keyNodeType]),
		ClusterID: props[keyClusterID],
		SCMID:     props[keySCMID],
	}
	if v, ok := props[keyCTime]; ok {
		info.CreationTime, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := props[keyLayoutVersion]; ok {
		info.LayoutVersion, _ = strconv.Atoi(v)
	}
	if v, ok := props[keyUpgradingToLayoutVersion]; ok && v != "" {
		info.UpgradingToLayoutVersion, _ = strconv.Atoi(v)
		return info, fmt.Errorf(
			"storage root %s is mid-upgrade to layout version %d: a prior upgrade attempt did not"+
				" complete cleanly; restore from backup or re-run the upgrade tool before starting this node",
			storageRoot, info.UpgradingToLayoutVersion)
	}
	return info, nil
}

// Write creates or overwrites the VERSION file for a freshly
// initialized storage root.
func Write(storageRoot string, info *Info) error {
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}

	props := map[string]string{
		keyNodeType:      string(info.NodeType),
		keyClusterID:     info.ClusterID,
		keySCMID:         info.SCMID,
		keyCTime:         strconv.FormatInt(info.CreationTime, 10),
		keyLayoutVersion: strconv.Itoa(info.LayoutVersion),
	}
	if info.UpgradingToLayoutVersion != 0 {
		props[keyUpgradingToLayoutVersion] = strconv.Itoa(info.UpgradingToLayoutVersion)
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}

	tmp := path(storageRoot) + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write VERSION file: %w", err)
	}
	if err := os.Rename(tmp, path(storageRoot)); err != nil {
		return fmt.Errorf("failed to finalize VERSION file: %w", err)
	}
	return nil
}

// BeginUpgrade stamps upgradingToLayoutVersion before an on-disk
// layout migration starts, so a crash mid-upgrade is detected on the
// next Load.
func BeginUpgrade(storageRoot string, info *Info, targetLayoutVersion int) error {
	info.UpgradingToLayoutVersion = targetLayoutVersion
	return Write(storageRoot, info)
}

// CompleteUpgrade clears upgradingToLayoutVersion and commits the new
// layout version once a migration has finished successfully.
func CompleteUpgrade(storageRoot string, info *Info, newLayoutVersion int) error {
	info.LayoutVersion = newLayoutVersion
	info.UpgradingToLayoutVersion = 0
	return Write(storageRoot, info)
}
