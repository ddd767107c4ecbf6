package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/anonymous-shadowhawk/pacboot/internal/logging"
	"github.com/anonymous-shadowhawk/pacboot/internal/record"
)

// tierMountPoints maps a tier to the block device pacd switches the root
// filesystem to. Tier1 has no mount point: it is the image already
// running, never mounted to.
var tierMountPoints = map[record.Tier]string{
	record.Tier2: "/dev/disk/by-partlabel/pacboot-t2",
	record.Tier3: "/dev/disk/by-partlabel/pacboot-t3",
}

const rootMountTarget = "/"

// blockMounter switches the device root filesystem by remounting it onto
// the tier's partition. It implements bootctl.Mounter and is used only by
// the boot controller; the runtime monitor applies tier changes through
// execRebooter instead.
type blockMounter struct {
	log *logging.Logger
}

func newBlockMounter(log *logging.Logger) *blockMounter {
	return &blockMounter{log: log}
}

func (m *blockMounter) Mount(tier record.Tier) error {
	dev, ok := tierMountPoints[tier]
	if !ok {
		return fmt.Errorf("no mount point configured for tier %s", tier.String())
	}
	m.log.Info("mounting tier root", "tier", tier.String(), "device", dev)
	if err := unix.Mount(dev, rootMountTarget, "ext4", unix.MS_REMOUNT, ""); err != nil {
		return fmt.Errorf("mount %s onto %s: %w", dev, rootMountTarget, err)
	}
	return nil
}

// httpAttestor performs the externalized attestation procedure (§6.3) by
// POSTing a fixed attestation request to the configured verifier and reading back a
// pass/fail verdict. A non-2xx response or malformed body is treated as
// pass=false with a non-nil error, never as a silent pass.
type httpAttestor struct {
	client *http.Client
	url    string
}

func newHTTPAttestor(url string, timeout time.Duration) *httpAttestor {
	return &httpAttestor{client: &http.Client{Timeout: timeout}, url: url}
}

type attestResponse struct {
	Pass bool `json:"pass"`
}

func (a *httpAttestor) Attest(ctx context.Context) (bool, error) {
	if a.url == "" {
		return false, fmt.Errorf("no verifier url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader([]byte(`{"request":"attest"}`)))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}

	var body attestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode verifier response: %w", err)
	}
	return body.Pass, nil
}

// scriptNetworkSetup runs an external script to bring up networking ahead
// of a Tier1->Tier2 promotion. The script's path is configurable so this
// adapter stays device-agnostic; pacd itself has no opinion on DHCP vs.
// static configuration.
type scriptNetworkSetup struct {
	scriptPath string
	attestor   *httpAttestor
}

func (s scriptNetworkSetup) SetupNetwork(ctx context.Context) error {
	if s.scriptPath == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, s.scriptPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("network setup script: %w (output: %s)", err, out)
	}
	return nil
}

func (s scriptNetworkSetup) Attest(ctx context.Context) (bool, error) {
	return s.attestor.Attest(ctx)
}

// execRebooter requests a reboot through the system's own reboot command
// rather than calling unix.Reboot directly, so the OS can run its normal
// shutdown hooks (journal flush, service stop order) before the kernel
// actually tears down.
type execRebooter struct {
	log *logging.Logger
}

func newExecRebooter(log *logging.Logger) *execRebooter {
	return &execRebooter{log: log}
}

func (r *execRebooter) RequestReboot(reason string) error {
	r.log.Warn("requesting reboot", "reason", reason)
	cmd := exec.Command("reboot")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
