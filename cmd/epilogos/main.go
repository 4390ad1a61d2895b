// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/meuleman/epilogos"
)

func main() {
	epilogos.Main()
}
