package main

import (
	"context"

	"github.com/kingrea/focus/sdk"
)

type First struct{}

func (First) Init(sdk.Env) error                 { return nil }
func (First) Settings() []*sdk.Setting           { return nil }
func (First) Actions() []sdk.Action              { return nil }
func (First) Validate(ctx context.Context) error { return nil }
func (First) Start(ctx context.Context) error    { return nil }
func (First) Stop(ctx context.Context) error     { return nil }

type Second struct{}

func (*Second) Init(sdk.Env) error                 { return nil }
func (*Second) Settings() []*sdk.Setting           { return nil }
func (*Second) Actions() []sdk.Action              { return nil }
func (*Second) Validate(ctx context.Context) error { return nil }
func (*Second) Start(ctx context.Context) error    { return nil }
func (*Second) Stop(ctx context.Context) error     { return nil }
