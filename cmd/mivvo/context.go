package main

import (
	"errors"
	"os"
	"strings"
	"sync"

	"mivvo/internal/apiclient"
	"mivvo/internal/config"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	ownerFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag, ownerFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		ownerFlag:  ownerFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() (string, error) {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Paths.APIBind, nil
}

// ownerID resolves the acting account: --owner flag first, then MIVVO_OWNER.
func (c *commandContext) ownerID() string {
	if c.ownerFlag != nil && strings.TrimSpace(*c.ownerFlag) != "" {
		return strings.TrimSpace(*c.ownerFlag)
	}
	return strings.TrimSpace(os.Getenv("MIVVO_OWNER"))
}

func (c *commandContext) client() (*apiclient.Client, error) {
	addr, err := c.apiAddress()
	if err != nil {
		return nil, err
	}
	token := ""
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		token = cfg.Paths.APIToken
	}
	return apiclient.New(addr, token, c.ownerID())
}

// ownedClient is for commands that act on a specific account.
func (c *commandContext) ownedClient() (*apiclient.Client, error) {
	if c.ownerID() == "" {
		return nil, errors.New("owner account required: pass --owner or set MIVVO_OWNER")
	}
	return c.client()
}
