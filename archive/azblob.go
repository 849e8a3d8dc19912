// Copyright 2025 QueryGate
// SPDX-License-Identifier: Apache-2.0
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package archive

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureBlobStore writes archive objects to an Azure Blob container.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// AzureBlobOptions configures the Azure backend. A connection string
// takes precedence; otherwise the account name plus the default Azure
// credential chain is used.
type AzureBlobOptions struct {
	Container        string
	AccountName      string
	ConnectionString string
}

// NewAzureBlobStore creates the store and its client.
func NewAzureBlobStore(opts AzureBlobOptions) (*AzureBlobStore, error) {
	if opts.Container == "" {
		return nil, fmt.Errorf("azblob archive: container is required")
	}

	var client *azblob.Client
	var err error
	switch {
	case opts.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(opts.ConnectionString, nil)
	case opts.AccountName != "":
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azblob archive: default credential: %w", err)
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", opts.AccountName)
		client, err = azblob.NewClient(serviceURL, cred, nil)
	default:
		return nil, fmt.Errorf("azblob archive: account name or connection string is required")
	}
	if err != nil {
		return nil, fmt.Errorf("azblob archive: create client: %w", err)
	}

	return &AzureBlobStore{client: client, container: opts.Container}, nil
}

// Put implements ObjectStore.
func (s *AzureBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, &azblob.UploadBufferOptions{}); err != nil {
		return fmt.Errorf("put %s/%s: %w", s.container, key, err)
	}
	return nil
}

// Close implements ObjectStore.
func (s *AzureBlobStore) Close() error { return nil }
