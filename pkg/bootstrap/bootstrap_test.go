package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kong/go-dataplane-bootstrap/pkg/certificate"
	"github.com/kong/go-dataplane-bootstrap/pkg/converge"
	"github.com/kong/go-dataplane-bootstrap/pkg/cprint"
	"github.com/kong/go-dataplane-bootstrap/pkg/dataplane"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect"
	"github.com/kong/go-dataplane-bootstrap/pkg/konnect/konnecttest"
	"github.com/kong/go-dataplane-bootstrap/pkg/retry"
)

const certificatesPath = "/v2/control-planes/" + controlPlaneID + "/dp-client-certificates"

func TestMain(m *testing.M) {
	cprint.DisableOutput = true
	m.Run()
}

type fakeLauncher struct {
	mu        sync.Mutex
	launched  []dataplane.Spec
	stopped   []string
	launchErr error
}

func (f *fakeLauncher) Launch(_ context.Context, spec dataplane.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, spec)
	return f.launchErr
}

func (f *fakeLauncher) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func convergingServer(t *testing.T, controlPlanes ...konnect.ControlPlane) *konnecttest.Server {
	t.Helper()
	return konnecttest.NewServer(t, konnecttest.Options{
		ControlPlanes:    controlPlanes,
		NodeLists:        [][]string{{}, {"n1"}},
		NodeHashes:       []string{"H0", "H0", "H1"},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
		Org:              konnect.OrgUserInfo{Name: "Kong", OrgID: "org-1"},
	})
}

func newTestBootstrapper(t *testing.T, server *konnecttest.Server, launcher dataplane.Launcher, fs afero.Fs) *Bootstrapper {
	t.Helper()
	fast := retry.Policy{Timeout: time.Second, Interval: 5 * time.Millisecond}
	b, err := New(Options{
		Client:        server.Client(t),
		Launcher:      launcher,
		Fs:            fs,
		WorkDir:       "/work",
		DataPlaneName: "dp-test",
		Poller:        converge.PollerOpts{NodePolicy: fast, HashPolicy: fast},
		ShowOrgInfo:   true,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return b
}

func TestSetup(t *testing.T) {
	server := convergingServer(t, testControlPlane())
	launcher := &fakeLauncher{}
	fs := afero.NewMemMapFs()
	b := newTestBootstrapper(t, server, launcher, fs)

	bc, err := b.Setup(context.Background())
	require.NoError(t, err)

	want := &Context{
		ControlPlaneID:       controlPlaneID,
		ControlPlaneEndpoint: "cp.example.com:443",
		TelemetryEndpoint:    "tp.example.com:443",
		CertificateID:        "cert-" + controlPlaneID,
		ContainerName:        "dp-test",
		WorkDir:              "/work",
		NodeID:               "n1",
		ConfigHash:           "H1",
	}
	if diff := cmp.Diff(want, bc); diff != "" {
		t.Errorf("unexpected bootstrap context (-want +got):\n%s", diff)
	}

	require.Len(t, launcher.launched, 1)
	spec := launcher.launched[0]
	assert.Equal(t, dataplane.DefaultImage, spec.Image)
	assert.Equal(t, "cp.example.com:443", spec.ControlPlaneEndpoint)
	assert.Equal(t, "tp.example.com:443", spec.TelemetryEndpoint)

	// the registered certificate is exactly what was written to disk
	onDisk, err := afero.ReadFile(fs, "/work/"+certificate.CertificateFile)
	require.NoError(t, err)
	key, err := afero.ReadFile(fs, "/work/"+certificate.PrivateKeyFile)
	require.NoError(t, err)
	assert.Equal(t, []string{string(onDisk)}, server.Certificates())
	assert.Equal(t, string(onDisk), spec.CertificatePEM)
	assert.Equal(t, string(key), spec.PrivateKeyPEM)

	assert.Equal(t, 1, server.Count(http.MethodGet, "/v2/organizations/me"))
	assert.Equal(t, 1, server.Count(http.MethodPost, certificatesPath))
}

func TestSetup_FreshIdentityEveryRun(t *testing.T) {
	server := convergingServer(t, testControlPlane())
	b := newTestBootstrapper(t, server, &fakeLauncher{}, afero.NewMemMapFs())

	_, err := b.Setup(context.Background())
	require.NoError(t, err)
	_, err = b.Setup(context.Background())
	require.NoError(t, err)

	certs := server.Certificates()
	require.Len(t, certs, 2)
	assert.NotEqual(t, certs[0], certs[1])
}

func TestSetup_LocateFailureStopsEarly(t *testing.T) {
	second := testControlPlane()
	second.ID = "9d8c7b6a-5f4e-4d3c-8b2a-1f0e9d8c7b6a"

	tests := []struct {
		name          string
		controlPlanes []konnect.ControlPlane
		wantErr       error
	}{
		{"no control plane", nil, ErrNoControlPlane},
		{"several control planes", []konnect.ControlPlane{testControlPlane(), second}, ErrMultipleControlPlanes},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := convergingServer(t, tc.controlPlanes...)
			launcher := &fakeLauncher{}
			fs := afero.NewMemMapFs()
			b := newTestBootstrapper(t, server, launcher, fs)

			bc, err := b.Setup(context.Background())
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, bc)

			assert.Len(t, server.Requests(), 1)
			assert.Empty(t, server.Certificates())
			assert.Empty(t, launcher.launched)
			exists, err := afero.Exists(fs, "/work/"+certificate.CertificateFile)
			require.NoError(t, err)
			assert.False(t, exists, "no certificate is generated")
		})
	}
}

func TestSetup_RegistrationFailureIsFatal(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		ControlPlanes:     []konnect.ControlPlane{testControlPlane()},
		CertificateStatus: http.StatusConflict,
	})
	launcher := &fakeLauncher{}
	b := newTestBootstrapper(t, server, launcher, afero.NewMemMapFs())

	bc, err := b.Setup(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, server.Count(http.MethodPost, certificatesPath), "registration is not retried")
	assert.Empty(t, launcher.launched)
	require.NotNil(t, bc)
	assert.Equal(t, "/work", bc.WorkDir)
	assert.Empty(t, bc.CertificateID)
}

func TestSetup_LaunchFailure(t *testing.T) {
	server := convergingServer(t, testControlPlane())
	launcher := &fakeLauncher{launchErr: errors.New("docker: not found")}
	b := newTestBootstrapper(t, server, launcher, afero.NewMemMapFs())

	bc, err := b.Setup(context.Background())
	require.ErrorContains(t, err, "docker: not found")
	assert.Equal(t, "cert-"+controlPlaneID, bc.CertificateID)
	assert.Empty(t, bc.ContainerName)
	assert.Zero(t, server.Count(http.MethodGet, "/v2/control-planes/"+controlPlaneID+"/nodes"))
}

func TestSetup_NeverConverges(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		ControlPlanes:    []konnect.ControlPlane{testControlPlane()},
		NodeLists:        [][]string{{"n1"}},
		NodeHashes:       []string{"H0"},
		ExpectedHashBody: `{"expected_hash":"H1"}`,
	})
	fast := retry.Policy{Timeout: 30 * time.Millisecond, Interval: 5 * time.Millisecond}
	b, err := New(Options{
		Client:   server.Client(t),
		Launcher: &fakeLauncher{},
		Fs:       afero.NewMemMapFs(),
		Poller:   converge.PollerOpts{NodePolicy: fast, HashPolicy: fast},
	})
	require.NoError(t, err)

	bc, err := b.Setup(context.Background())
	var mismatch *converge.HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "n1", bc.NodeID)
	assert.Equal(t, "H0", bc.ConfigHash)
	assert.Regexp(t, "^konnect-dp-[0-9a-f]{8}$", bc.ContainerName)
}

func TestTeardown(t *testing.T) {
	server := convergingServer(t, testControlPlane())
	launcher := &fakeLauncher{}
	fs := afero.NewMemMapFs()
	b := newTestBootstrapper(t, server, launcher, fs)

	bc, err := b.Setup(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Teardown(context.Background(), bc))

	assert.Equal(t, []string{"dp-test"}, launcher.stopped)
	assert.Equal(t, 1, server.Count(http.MethodDelete, certificatesPath+"/cert-"+controlPlaneID))
	assert.Equal(t, 1, server.Count(http.MethodDelete, "/v2/control-planes/"+controlPlaneID+"/nodes/n1"))
	for _, name := range []string{certificate.CertificateFile, certificate.PrivateKeyFile, certificate.PublicKeyFile} {
		exists, err := afero.Exists(fs, "/work/"+name)
		require.NoError(t, err)
		assert.False(t, exists, name)
	}

	// only what was created is torn down
	launcher.stopped = nil
	require.NoError(t, b.Teardown(context.Background(), &Context{ControlPlaneID: controlPlaneID}))
	assert.Empty(t, launcher.stopped)
	require.NoError(t, b.Teardown(context.Background(), nil))
}

func TestSetup_CertificateWithoutID(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		ControlPlanes:     []konnect.ControlPlane{testControlPlane()},
		NodeLists:         [][]string{{"n1"}},
		NodeHashes:        []string{"H1"},
		ExpectedHashBody:  `{"expected_hash":"H1"}`,
		OmitCertificateID: true,
	})
	var logs bytes.Buffer
	fast := retry.Policy{Timeout: time.Second, Interval: 5 * time.Millisecond}
	b, err := New(Options{
		Client:   server.Client(t),
		Launcher: &fakeLauncher{},
		Fs:       afero.NewMemMapFs(),
		Poller:   converge.PollerOpts{NodePolicy: fast, HashPolicy: fast},
		Logger:   zerolog.New(&logs),
	})
	require.NoError(t, err)

	bc, err := b.Setup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bc.CertificateID)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "no certificate id")
}

func TestTeardown_NodeDeletionFailure(t *testing.T) {
	server := konnecttest.NewServer(t, konnecttest.Options{
		NodeDeleteStatus: http.StatusInternalServerError,
	})
	launcher := &fakeLauncher{}
	b := newTestBootstrapper(t, server, launcher, afero.NewMemMapFs())

	err := b.Teardown(context.Background(), &Context{
		ControlPlaneID: controlPlaneID,
		ContainerName:  "dp-test",
		NodeID:         "n1",
	})
	require.ErrorContains(t, err, "forgetting node")
	assert.Equal(t, []string{"dp-test"}, launcher.stopped)
}

func TestContextFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	want := &Context{
		ControlPlaneID:       controlPlaneID,
		ControlPlaneEndpoint: "cp.example.com:443",
		CertificateID:        "cert-1",
		ContainerName:        "dp-test",
		NodeID:               "n1",
	}
	require.NoError(t, SaveContext(fs, "/ctx.yaml", want))

	raw, err := afero.ReadFile(fs, "/ctx.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "control_plane_id: "+controlPlaneID)
	assert.NotContains(t, string(raw), "telemetry_endpoint")

	got, err := LoadContext(fs, "/ctx.yaml")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected bootstrap context (-want +got):\n%s", diff)
	}

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("node_id: n1\n"), 0o600))
	_, err = LoadContext(fs, "/bad.yaml")
	require.ErrorContains(t, err, "no control_plane_id")

	require.NoError(t, afero.WriteFile(fs, "/unknown.yaml", []byte("control_plane_id: x\ncolor: red\n"), 0o600))
	_, err = LoadContext(fs, "/unknown.yaml")
	require.Error(t, err)
}
