package autoscaler

import (
	"context"
	"fmt"
	"sync"

	"github.com/digitalocean/godo"
	"github.com/easyctf/openctf-judge/go/httputils"
	"github.com/easyctf/openctf-judge/go/skerr"
	"github.com/easyctf/openctf-judge/go/sklog"
	"github.com/easyctf/openctf-judge/go/util"
	"github.com/easyctf/openctf-judge/go/workerpool"
	"github.com/easyctf/openctf-judge/judge/go/auth"
	"github.com/easyctf/openctf-judge/judge/go/db"
	"github.com/easyctf/openctf-judge/judge/go/types"
	"golang.org/x/oauth2"
)

const (
	// JuryTag marks every droplet managed by the autoscaler. Only droplets
	// carrying this tag are ever counted or destroyed.
	JuryTag = "openctf-jury"

	dropletRegion = "sfo2"
	dropletImage  = "docker-16-04"
	dropletSize   = "2gb"

	// createParallelism bounds concurrent droplet create calls.
	createParallelism = 4
)

// TODO: Add a stop command for the jury systemd service.
const userDataTemplate = `#!/bin/bash

cat > /etc/systemd/system/docker-jury.service <<EOF
[Unit]
Description=Jury container
Requires=docker.service
After=docker.service

[Service]
Restart=always
ExecStart=/usr/bin/docker run --cap-add=SYS_PTRACE -e JUDGE_URL=%s -e JUDGE_API_KEY=%s easyctf/openctf-jury:latest
ExecStop=:

[Install]
WantedBy=default.target
EOF

systemctl daemon-reload
systemctl enable docker-jury
systemctl start docker-jury
`

// DigitalOcean is the Cloud implementation over godo. Each created jury
// gets a fresh name, a fresh jury-capability API key stored under that
// name, and a cloud-init script that runs the jury container with the key.
type DigitalOcean struct {
	client   *godo.Client
	db       db.DB
	judgeURL string
}

// NewDigitalOcean returns a DigitalOcean scaling the fleet under the given
// account. judgeURL is handed to every new jury as the coordinator to dial.
// API calls ride the retrying HTTP client, so a flaky 5xx from the cloud
// does not abort a scaling tick.
func NewDigitalOcean(token string, d db.DB, judgeURL string) *DigitalOcean {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httputils.DefaultClientConfig().Client())
	return NewDigitalOceanWithClient(godo.NewClient(oauth2.NewClient(ctx, ts)), d, judgeURL)
}

// NewDigitalOceanWithClient is NewDigitalOcean with an injectable godo
// client, for tests.
func NewDigitalOceanWithClient(client *godo.Client, d db.DB, judgeURL string) *DigitalOcean {
	return &DigitalOcean{
		client:   client,
		db:       d,
		judgeURL: judgeURL,
	}
}

// listJuries returns every droplet carrying JuryTag.
func (c *DigitalOcean) listJuries(ctx context.Context) ([]godo.Droplet, error) {
	var ret []godo.Droplet
	opts := &godo.ListOptions{}
	for {
		droplets, resp, err := c.client.Droplets.ListByTag(ctx, JuryTag, opts)
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		ret = append(ret, droplets...)
		if resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, skerr.Wrap(err)
		}
		opts.Page = page + 1
	}
	return ret, nil
}

// CurrentCount implements Cloud.
func (c *DigitalOcean) CurrentCount(ctx context.Context) (int, error) {
	juries, err := c.listJuries(ctx)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	return len(juries), nil
}

// Create implements Cloud. Keys are minted up front so that a droplet is
// never launched without a working credential; droplet creation itself runs
// in parallel.
func (c *DigitalOcean) Create(ctx context.Context, n int) error {
	type jury struct {
		name string
		key  string
	}
	juries := make([]jury, 0, n)
	for i := 0; i < n; i++ {
		suffix, err := util.RandHexString(8)
		if err != nil {
			return skerr.Wrap(err)
		}
		name := fmt.Sprintf("jury-%s", suffix)
		key, err := auth.GenerateKey()
		if err != nil {
			return skerr.Wrap(err)
		}
		if err := c.db.PutAPIKey(ctx, &types.APIKey{
			Key:    key,
			Name:   name,
			Active: true,
			Jury:   true,
		}); err != nil {
			return skerr.Wrapf(err, "storing API key for %s", name)
		}
		juries = append(juries, jury{name: name, key: key})
	}

	var mtx sync.Mutex
	var errs []error
	pool := workerpool.New(createParallelism)
	for _, j := range juries {
		j := j
		pool.Go(func() {
			if err := c.createDroplet(ctx, j.name, j.key); err != nil {
				mtx.Lock()
				errs = append(errs, err)
				mtx.Unlock()
				return
			}
			sklog.Infof("Created jury %s", j.name)
		})
	}
	pool.Wait()
	if len(errs) > 0 {
		return skerr.Wrapf(errs[0], "%d of %d creates failed", len(errs), len(juries))
	}
	return nil
}

func (c *DigitalOcean) createDroplet(ctx context.Context, name, apiKey string) error {
	req := &godo.DropletCreateRequest{
		Name:     name,
		Region:   dropletRegion,
		Size:     dropletSize,
		Image:    godo.DropletCreateImage{Slug: dropletImage},
		Tags:     []string{JuryTag},
		UserData: fmt.Sprintf(userDataTemplate, c.judgeURL, apiKey),
	}
	if _, _, err := c.client.Droplets.Create(ctx, req); err != nil {
		return skerr.Wrapf(err, "creating droplet %s", name)
	}
	return nil
}

// Destroy implements Cloud. Victims are taken from the end of the tagged
// list with no regard for in-progress claims; an interrupted job goes stale
// and is reclaimed five minutes later.
func (c *DigitalOcean) Destroy(ctx context.Context, n int) (int, error) {
	juries, err := c.listJuries(ctx)
	if err != nil {
		return 0, skerr.Wrap(err)
	}
	if n > len(juries) {
		n = len(juries)
	}
	destroyed := 0
	for i := 0; i < n; i++ {
		victim := juries[len(juries)-1-i]
		if _, err := c.client.Droplets.Delete(ctx, victim.ID); err != nil {
			return destroyed, skerr.Wrapf(err, "destroying droplet %s", victim.Name)
		}
		sklog.Infof("Destroyed jury %s", victim.Name)
		destroyed++
	}
	return destroyed, nil
}

var _ Cloud = (*DigitalOcean)(nil)
