// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package genomics

import (
	"regexp"
	"strings"
)

var canonicalRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`^chro?m?(osome)?`), "chr"},
	{regexp.MustCompile(`^co?n?ti?g`), "ctg"},
	{regexp.MustCompile(`^scaff?o?l?d?`), "scaffold"},
	{regexp.MustCompile(`^([a-z]*)0+`), "${1}"},
	{regexp.MustCompile(`^(\d+)$`), "chr${1}"},
}

// CanonicalName maps a reference name to a canonical form so that names
// written under different conventions compare equal: "Chr01", "chromosome1"
// and "1" all become "chr1".  The mapping is case insensitive and
// deterministic.
func CanonicalName(name string) string {
	name = strings.ToLower(name)
	for _, rule := range canonicalRules {
		name = rule.pattern.ReplaceAllString(name, rule.replacement)
	}
	return name
}
