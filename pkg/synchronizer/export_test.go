// Copyright 2023 The Colossus Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synchronizer

var (
	RemoveValue = removeValue
	Difference  = difference
)
