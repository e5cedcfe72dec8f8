// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs_test

import (
	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/vfs"
)

type SplitPathElemTest struct {
}

func init() { RegisterTestSuite(&SplitPathElemTest{}) }

func (t *SplitPathElemTest) GoldenCases() {
	testCases := []struct {
		path string
		name string
		rest string
		ok   bool
	}{
		{"a/bb/c", "a", "bb/c", true},
		{"///a//bb", "a", "bb", true},
		{"a", "a", "", true},
		{"a///", "a", "", true},
		{"", "", "", false},
		{"////", "", "", false},
		{"/d/b", "d", "b", true},
	}

	for _, tc := range testCases {
		name, rest, ok := vfs.SplitPathElem(tc.path)
		ExpectEq(tc.name, name, "path: %q", tc.path)
		ExpectEq(tc.rest, rest, "path: %q", tc.path)
		ExpectEq(tc.ok, ok, "path: %q", tc.path)
	}
}

func (t *SplitPathElemTest) TruncatesLongElements() {
	// A 14-byte element survives intact.
	exact := "abcdefghijklmn"
	AssertEq(vfs.DirNameLen, len(exact))

	name, rest, ok := vfs.SplitPathElem(exact + "/x")
	ExpectTrue(ok)
	ExpectEq(exact, name)
	ExpectEq("x", rest)

	// A longer one is silently truncated to 14 bytes, so two names sharing a
	// 14-byte prefix are indistinguishable.
	name, rest, ok = vfs.SplitPathElem(exact + "op/x")
	ExpectTrue(ok)
	ExpectEq(exact, name)
	ExpectEq("x", rest)
}
