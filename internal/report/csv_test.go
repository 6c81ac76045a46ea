// Copyright 2019, Oath Inc.
// Licensed under the terms of the Apache License, Version 2.0. See LICENSE file for terms.

package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	objects map[string][]byte
}

func (w *memoryWriter) WriteObject(_ context.Context, uri string, data []byte) error {
	if w.objects == nil {
		w.objects = make(map[string][]byte)
	}
	w.objects[uri] = data
	return nil
}

func TestRenderCSV(t *testing.T) {
	table := &Table{
		Name:    RIPurchases,
		Columns: []string{"Account ID", "units"},
		Rows: [][]string{
			{"000000001234", "32"},
			{`="000000001234"`, "16"},
		},
	}

	data, err := RenderCSV(table)
	require.NoError(t, err)
	assert.Equal(t,
		"Account ID,units\n000000001234,32\n\"=\"\"000000001234\"\"\",16\n",
		string(data))
}

func TestWriteCSV(t *testing.T) {
	table := &Table{
		Name:    RIUsage,
		Columns: []string{"region"},
		Rows:    [][]string{{"us-east-1"}},
	}
	store := &memoryWriter{}

	err := WriteCSV(context.Background(), table, "file:///tmp/ri-usage.csv", store)
	require.NoError(t, err)
	assert.Equal(t, "region\nus-east-1\n", string(store.objects["file:///tmp/ri-usage.csv"]))
}
