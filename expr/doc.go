// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package expr implements the immutable
// expression graph consumed by the optimizer.
//
// Every Node is created by a Context, which
// owns the nodes, the interned types and constraint
// sets, and the issues of one compilation. Nodes
// are never modified once constructed; the helpers
// in this package (ChangeChildren, ReplaceNodes,
// ApplyLambda, DeepCopyLambda) build new nodes
// and share every untouched subtree.
//
// The critical entry points for this
// package are Parse, Format, Walk, and ReplaceNodes.
package expr
